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
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	defaultSNMPPort       = 161
	defaultSNMPTimeout    = 2 * time.Second
	defaultSNMPRetries    = 1
	defaultMaxRepetitions = 10
)

// Client is the subset of an SNMP session the collectors need.
type Client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(rootOID string, fn gosnmp.WalkFunc) error
	Close() error
}

// Dialer opens a session against a device.
type Dialer func(ctx context.Context, addr netip.Addr, creds Credentials) (Client, error)

// ClientConfig holds session-level limits shared by every dial.
type ClientConfig struct {
	Timeout time.Duration
	Retries int
}

type gosnmpClient struct {
	snmp *gosnmp.GoSNMP
}

func (c *gosnmpClient) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return c.snmp.Get(oids)
}

// Walk uses GETBULK where the protocol allows it.
func (c *gosnmpClient) Walk(rootOID string, fn gosnmp.WalkFunc) error {
	if c.snmp.Version == gosnmp.Version1 {
		return c.snmp.Walk(rootOID, fn)
	}

	return c.snmp.BulkWalk(rootOID, fn)
}

func (c *gosnmpClient) Close() error {
	if c.snmp.Conn == nil {
		return nil
	}

	return c.snmp.Conn.Close()
}

// NewDialer returns a Dialer backed by gosnmp.
func NewDialer(cfg ClientConfig) Dialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSNMPTimeout
	}

	if cfg.Retries < 0 {
		cfg.Retries = defaultSNMPRetries
	}

	return func(ctx context.Context, addr netip.Addr, creds Credentials) (Client, error) {
		snmp, err := newSNMPSession(ctx, addr, creds, cfg)
		if err != nil {
			return nil, err
		}

		if err := snmp.Connect(); err != nil {
			return nil, fmt.Errorf("snmp connect %s: %w", addr, err)
		}

		return &gosnmpClient{snmp: snmp}, nil
	}
}

func newSNMPSession(ctx context.Context, addr netip.Addr, creds Credentials, cfg ClientConfig) (*gosnmp.GoSNMP, error) {
	port := creds.Port
	if port == 0 {
		port = defaultSNMPPort
	}

	snmp := &gosnmp.GoSNMP{
		Context:            ctx,
		Target:             addr.String(),
		Port:               port,
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     defaultMaxRepetitions,
		ExponentialTimeout: true,
	}

	if err := applyCredentials(snmp, creds); err != nil {
		return nil, err
	}

	return snmp, nil
}

func applyCredentials(snmp *gosnmp.GoSNMP, creds Credentials) error {
	switch creds.Version {
	case SNMPVersion1:
		snmp.Version = gosnmp.Version1
		snmp.Community = creds.Community
	case SNMPVersion2c, "":
		snmp.Version = gosnmp.Version2c
		snmp.Community = creds.Community
	case SNMPVersion3:
		snmp.Version = gosnmp.Version3
		snmp.SecurityModel = gosnmp.UserSecurityModel
		snmp.ContextName = creds.ContextName

		usm := &gosnmp.UsmSecurityParameters{UserName: creds.Username}
		auth := applyAuth(usm, creds)
		priv := applyPrivacy(usm, creds)

		switch {
		case auth && priv:
			snmp.MsgFlags = gosnmp.AuthPriv
		case auth:
			snmp.MsgFlags = gosnmp.AuthNoPriv
		default:
			snmp.MsgFlags = gosnmp.NoAuthNoPriv
		}

		snmp.SecurityParameters = usm
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSNMPVersion, creds.Version)
	}

	return nil
}

//nolint:gochecknoglobals // lookup tables
var (
	authProtocols = map[string]gosnmp.SnmpV3AuthProtocol{
		"MD5":    gosnmp.MD5,
		"SHA":    gosnmp.SHA,
		"SHA224": gosnmp.SHA224,
		"SHA256": gosnmp.SHA256,
		"SHA384": gosnmp.SHA384,
		"SHA512": gosnmp.SHA512,
	}
	privProtocols = map[string]gosnmp.SnmpV3PrivProtocol{
		"DES":    gosnmp.DES,
		"AES":    gosnmp.AES,
		"AES192": gosnmp.AES192,
		"AES256": gosnmp.AES256,
	}
)

func applyAuth(usm *gosnmp.UsmSecurityParameters, creds Credentials) bool {
	proto, ok := authProtocols[strings.ToUpper(creds.AuthProtocol)]
	if !ok {
		return false
	}

	usm.AuthenticationProtocol = proto
	usm.AuthenticationPassphrase = creds.AuthPassword

	return true
}

func applyPrivacy(usm *gosnmp.UsmSecurityParameters, creds Credentials) bool {
	proto, ok := privProtocols[strings.ToUpper(creds.PrivacyProtocol)]
	if !ok {
		return false
	}

	usm.PrivacyProtocol = proto
	usm.PrivacyPassphrase = creds.PrivacyPassword

	return true
}
