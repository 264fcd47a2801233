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

package db

import "errors"

var (
	ErrDatabaseError = errors.New("database error")

	ErrNodeNotFound      = errors.New("managed node not found")
	ErrNodeExists        = errors.New("managed node already exists for address")
	ErrCandidateNotFound = errors.New("discovery candidate not found")
	ErrLinkNotFound      = errors.New("topology link not found")

	// ErrLinkExists is returned when an insert races another writer on the
	// same normalized endpoint key.
	ErrLinkExists = errors.New("topology link already exists")

	ErrInvalidAddress  = errors.New("address is required")
	ErrInvalidLinkKey  = errors.New("link endpoints are required")
	ErrMissingCNPGConf = errors.New("cnpg: host and database are required")
	ErrCNPGTLSConfig   = errors.New("cnpg tls: cert_file, key_file, and ca_file are required")
	ErrCNPGTLSCA       = errors.New("cnpg tls: unable to append CA certificate")
)
