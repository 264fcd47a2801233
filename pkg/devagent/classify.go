/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package devagent

import (
	"regexp"
	"strings"
)

const (
	confidenceBase          = 0.6
	confidenceEnterprise    = 0.25
	confidenceDescriptor    = 0.15
	confidenceSpecificity   = 0.1
	confidenceCap           = 0.99
	confidenceUnknownVendor = 0.5

	// descriptor length that earns the full specificity bonus
	specificityFullLength = 20
)

// DescriptorRule maps a lowercase descriptor fragment to a device type.
type DescriptorRule struct {
	Pattern    string
	DeviceType string
}

// Signature identifies one vendor.
type Signature struct {
	Vendor      string
	Enterprises []string
	Descriptors []DescriptorRule
	DeviceType  string
	Model       *regexp.Regexp
}

// Classification is the result of matching an Identity against signatures.
type Classification struct {
	Vendor     string
	Model      string
	DeviceType string
	Confidence float64
	Matched    bool
	Chassis    bool
}

//nolint:gochecknoglobals // built-in signatures
var (
	DefaultSignatures = []Signature{
		{
			Vendor:      "cisco",
			Enterprises: []string{".1.3.6.1.4.1.9"},
			Descriptors: []DescriptorRule{
				{Pattern: "cisco nx-os", DeviceType: DeviceTypeNXOS},
				{Pattern: "cisco ios xr", DeviceType: DeviceTypeCisco},
				{Pattern: "cisco ios software", DeviceType: DeviceTypeCisco},
				{Pattern: "cisco internetwork operating system", DeviceType: DeviceTypeCisco},
				{Pattern: "cisco", DeviceType: DeviceTypeCisco},
			},
			DeviceType: DeviceTypeCisco,
			Model:      regexp.MustCompile(`(?i)(?:cisco ios software,?\s*(?:\[[^\]]*\],?\s*)?(\S+) software|nx-os\(tm\)\s+([^,\s]+))`),
		},
		{
			Vendor:      "juniper",
			Enterprises: []string{".1.3.6.1.4.1.2636"},
			Descriptors: []DescriptorRule{
				{Pattern: "juniper networks", DeviceType: DeviceTypeJuniper},
				{Pattern: "junos", DeviceType: DeviceTypeJuniper},
			},
			DeviceType: DeviceTypeJuniper,
			Model:      regexp.MustCompile(`(?i)juniper networks,?\s*inc\.?\s+(\S+)`),
		},
		{
			Vendor:      "arista",
			Enterprises: []string{".1.3.6.1.4.1.30065"},
			Descriptors: []DescriptorRule{
				{Pattern: "arista networks eos", DeviceType: DeviceTypeArista},
				{Pattern: "arista", DeviceType: DeviceTypeArista},
			},
			DeviceType: DeviceTypeArista,
			Model:      regexp.MustCompile(`(?i)running on an arista networks\s+(\S+)`),
		},
		{
			Vendor:      "ubiquiti",
			Enterprises: []string{".1.3.6.1.4.1.41112", ".1.3.6.1.4.1.4413"},
			Descriptors: []DescriptorRule{
				{Pattern: "edgeswitch", DeviceType: DeviceTypeUbiquiti},
				{Pattern: "edgeos", DeviceType: DeviceTypeUbiquiti},
				{Pattern: "unifi", DeviceType: DeviceTypeUbiquiti},
				{Pattern: "ubiquiti", DeviceType: DeviceTypeUbiquiti},
			},
			DeviceType: DeviceTypeUbiquiti,
			Model:      regexp.MustCompile(`(?i)(edgeswitch\s+\S+|us-\S+|usw-\S+)`),
		},
		{
			Vendor:      "aruba",
			Enterprises: []string{".1.3.6.1.4.1.47196", ".1.3.6.1.4.1.11"},
			Descriptors: []DescriptorRule{
				{Pattern: "arubaos-cx", DeviceType: DeviceTypeGeneric},
				{Pattern: "procurve", DeviceType: DeviceTypeGeneric},
				{Pattern: "aruba", DeviceType: DeviceTypeGeneric},
			},
			DeviceType: DeviceTypeGeneric,
			Model:      regexp.MustCompile(`(?i)(?:procurve|aruba)\s+(?:switch\s+)?(\S+)`),
		},
		{
			Vendor:      "mikrotik",
			Enterprises: []string{".1.3.6.1.4.1.14988"},
			Descriptors: []DescriptorRule{
				{Pattern: "routeros", DeviceType: DeviceTypeGeneric},
				{Pattern: "mikrotik", DeviceType: DeviceTypeGeneric},
			},
			DeviceType: DeviceTypeGeneric,
			Model:      regexp.MustCompile(`(?i)routeros\s+(\S+)`),
		},
		{
			Vendor:      "net-snmp",
			Enterprises: []string{".1.3.6.1.4.1.8072"},
			Descriptors: []DescriptorRule{
				{Pattern: "linux", DeviceType: DeviceTypeGeneric},
			},
			DeviceType: DeviceTypeGeneric,
		},
	}

	DefaultChassisMarkers = []string{
		"chassis",
		"catalyst 65", "catalyst 68", "catalyst 94", "catalyst 96", "c9400", "c9600",
		"nexus 7", "nexus 95", "n7k", "n9k-c95",
		"mx960", "mx480", "mx240", "ptx",
		"7500r", "7800r",
		"asr 9", "asr9k",
	}
)

// Classifier derives vendor, model and device type from an Identity.
type Classifier struct {
	signatures []Signature
	chassis    []string
}

// NewClassifier uses the default tables when either argument is empty.
func NewClassifier(signatures []Signature, chassisMarkers []string) *Classifier {
	if len(signatures) == 0 {
		signatures = DefaultSignatures
	}

	if len(chassisMarkers) == 0 {
		chassisMarkers = DefaultChassisMarkers
	}

	markers := make([]string, 0, len(chassisMarkers))
	for _, m := range chassisMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}

	return &Classifier{signatures: signatures, chassis: markers}
}

// Classify scores every signature and keeps the strongest. A longer
// matching descriptor fragment scores higher.
func (c *Classifier) Classify(id Identity) Classification {
	descr := strings.ToLower(id.SysDescr)
	oid := "." + strings.TrimPrefix(id.SysObjectID, ".")

	best := Classification{DeviceType: DeviceTypeGeneric, Confidence: confidenceUnknownVendor}

	for i := range c.signatures {
		sig := &c.signatures[i]

		enterprise := matchEnterprise(oid, sig.Enterprises)
		rule, ok := matchDescriptor(descr, sig.Descriptors)

		if enterprise == "" && !ok {
			continue
		}

		score := confidenceBase + confidenceDescriptor
		if enterprise != "" {
			score = confidenceBase + confidenceEnterprise
		}

		score += confidenceSpecificity * min(1, float64(len(rule.Pattern))/specificityFullLength)
		score = min(score, confidenceCap)

		if best.Matched && score <= best.Confidence {
			continue
		}

		deviceType := sig.DeviceType
		if ok && rule.DeviceType != "" {
			deviceType = rule.DeviceType
		}

		best = Classification{
			Vendor:     sig.Vendor,
			Model:      extractModel(sig.Model, id.SysDescr),
			DeviceType: deviceType,
			Confidence: score,
			Matched:    true,
		}
	}

	best.Chassis = c.isChassis(descr, strings.ToLower(best.Model))

	return best
}

func (c *Classifier) isChassis(texts ...string) bool {
	for _, text := range texts {
		if text == "" {
			continue
		}

		for _, m := range c.chassis {
			if strings.Contains(text, m) {
				return true
			}
		}
	}

	return false
}

func matchEnterprise(oid string, enterprises []string) string {
	for _, e := range enterprises {
		if oid == e || strings.HasPrefix(oid, e+".") {
			return e
		}
	}

	return ""
}

// matchDescriptor returns the longest matching rule.
func matchDescriptor(descr string, rules []DescriptorRule) (DescriptorRule, bool) {
	var (
		best  DescriptorRule
		found bool
	)

	for _, r := range rules {
		if strings.Contains(descr, r.Pattern) && len(r.Pattern) > len(best.Pattern) {
			best = r
			found = true
		}
	}

	return best, found
}

func extractModel(re *regexp.Regexp, descr string) string {
	if re == nil {
		return ""
	}

	m := re.FindStringSubmatch(descr)
	for i := 1; i < len(m); i++ {
		if m[i] != "" {
			return strings.TrimRight(m[i], ",")
		}
	}

	return ""
}
