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

// System group
const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
)

// Interfaces
const (
	oidIfDescr = ".1.3.6.1.2.1.2.2.1.2"
	oidIfName  = ".1.3.6.1.2.1.31.1.1.1.1"
)

// IP-MIB
const (
	oidIPAdEntIfIndex          = ".1.3.6.1.2.1.4.20.1.2"
	oidIPAdEntNetMask          = ".1.3.6.1.2.1.4.20.1.3"
	oidIPNetToMediaPhysAddress = ".1.3.6.1.2.1.4.22.1.2"
	oidIPCidrRouteIfIndex      = ".1.3.6.1.2.1.4.24.4.1.5"
	oidIPCidrRouteProto        = ".1.3.6.1.2.1.4.24.4.1.7"
	oidIPRouteIfIndex          = ".1.3.6.1.2.1.4.21.1.2"
	oidIPRouteNextHop          = ".1.3.6.1.2.1.4.21.1.7"
	oidIPRouteProto            = ".1.3.6.1.2.1.4.21.1.9"
	oidIPRouteMask             = ".1.3.6.1.2.1.4.21.1.11"
)

// LLDP-MIB
const (
	oidLLDPLocChassisID    = ".1.0.8802.1.1.2.1.3.2.0"
	oidLLDPLocPortDesc     = ".1.0.8802.1.1.2.1.3.7.1.4"
	oidLLDPRemTable        = ".1.0.8802.1.1.2.1.4.1.1"
	oidLLDPRemManAddrTable = ".1.0.8802.1.1.2.1.4.2.1.3"

	lldpRemChassisID = "5"
	lldpRemPortID    = "7"
	lldpRemPortDesc  = "8"
	lldpRemSysName   = "9"
)

// CISCO-CDP-MIB
const (
	oidCDPCacheTable = ".1.3.6.1.4.1.9.9.23.1.2.1.1"

	cdpCacheAddress    = "4"
	cdpCacheDeviceID   = "6"
	cdpCacheDevicePort = "7"
)

// BRIDGE-MIB and Q-BRIDGE-MIB
const (
	oidDot1dBaseNumPorts      = ".1.3.6.1.2.1.17.1.2.0"
	oidDot1dBasePortIfIndex   = ".1.3.6.1.2.1.17.1.4.1.2"
	oidDot1dTpFdbPort         = ".1.3.6.1.2.1.17.4.3.1.2"
	oidDot1dTpFdbStatus       = ".1.3.6.1.2.1.17.4.3.1.3"
	oidDot1qVlanVersionNumber = ".1.3.6.1.2.1.17.7.1.1.1.0"
	oidDot1qTpFdbPort         = ".1.3.6.1.2.1.17.7.1.2.2.1.2"
	oidDot1qTpFdbStatus       = ".1.3.6.1.2.1.17.7.1.2.2.1.3"
)
