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

package mapper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const (
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"

	truncationMarker = "log truncated, further entries dropped"
)

// job is one queued or running discovery or crawl.
type job struct {
	id     string
	kind   models.JobKind
	target string // lease target
	run    func(ctx context.Context, j *job) error
	ctx    context.Context
	cancel context.CancelFunc
	maxLog int

	mu        sync.Mutex
	state     models.JobState
	counts    models.JobCounts
	err       string
	startTime time.Time
	endTime   time.Time
	log       []models.JobLogEntry
	truncated bool
	seen      map[models.CandidateID]struct{}
	created   []models.CandidateID
}

func newJob(ctx context.Context, id string, kind models.JobKind, target string, maxLog int,
	run func(ctx context.Context, j *job) error) *job {
	jobCtx, cancel := context.WithCancel(ctx)

	return &job{
		id:        id,
		kind:      kind,
		target:    target,
		run:       run,
		ctx:       jobCtx,
		cancel:    cancel,
		maxLog:    maxLog,
		state:     models.JobPending,
		startTime: time.Now(),
		seen:      make(map[models.CandidateID]struct{}),
	}
}

// logf appends to the job log. Once maxLog entries are present a single
// truncation marker is written and later entries are dropped.
func (j *job) logf(level, format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.log) >= j.maxLog {
		if !j.truncated {
			j.truncated = true
			j.log = append(j.log, models.JobLogEntry{At: time.Now(), Level: logLevelWarn, Message: truncationMarker})
		}

		return
	}

	j.log = append(j.log, models.JobLogEntry{At: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)})
}

func (j *job) update(fn func(c *models.JobCounts)) {
	j.mu.Lock()
	fn(&j.counts)
	j.mu.Unlock()
}

// terminated reports whether results produced now must be discarded.
func (j *job) terminated() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.state.Terminal()
}

func (j *job) setRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != models.JobPending {
		return false
	}

	j.state = models.JobRunning
	j.startTime = time.Now()

	return true
}

// finish moves the job into a terminal state unless it already is in one.
func (j *job) finish(state models.JobState, errMsg string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return false
	}

	j.state = state
	j.err = errMsg
	j.endTime = time.Now()

	return true
}

// trackCandidate remembers a candidate row touched by this job and reports
// whether this is the first time.
func (j *job) trackCandidate(id models.CandidateID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.seen[id]; ok {
		return false
	}

	j.seen[id] = struct{}{}
	j.created = append(j.created, id)
	j.counts.CandidatesCreated++

	return true
}

func (j *job) createdCandidates() []models.CandidateID {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]models.CandidateID(nil), j.created...)
}

func (j *job) status() *models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	return &models.JobStatus{
		ID:        j.id,
		Kind:      j.kind,
		State:     j.state,
		Counts:    j.counts,
		Error:     j.err,
		StartTime: j.startTime,
		EndTime:   j.endTime,
		Log:       append([]models.JobLogEntry(nil), j.log...),
		Truncated: j.truncated,
	}
}
