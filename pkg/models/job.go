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

package models

import "time"

type JobKind string

const (
	JobDiscovery JobKind = "discovery"
	JobCrawl     JobKind = "crawl"
)

type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

type JobLogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// JobCounts are the progress counters of a job.
type JobCounts struct {
	Total             int `json:"total"`
	Scanned           int `json:"scanned"`
	Live              int `json:"live"`
	OutOfScope        int `json:"out_of_scope"`
	CandidatesCreated int `json:"candidates_created"`
	Visited           int `json:"visited"`
	EdgesSeen         int `json:"edges_seen"`
	Approved          int `json:"approved"`
}

// JobStatus is a point-in-time copy of a job.
type JobStatus struct {
	ID        string        `json:"id"`
	Kind      JobKind       `json:"kind"`
	State     JobState      `json:"state"`
	Counts    JobCounts     `json:"counts"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Log       []JobLogEntry `json:"log"`
	Truncated bool          `json:"log_truncated"`
}
