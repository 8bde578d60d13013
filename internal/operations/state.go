package operations

import (
	"sync"
	"time"
)

// StepStatus is the lifecycle of one refresh step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step has stopped.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// RunStatus is the lifecycle of a whole refresh.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepState records what happened to one step.
type StepState struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState returns a pending step.
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step active.
func (s *StepState) Start(now time.Time) {
	s.Status = StepStatusActive
	s.StartTime = &now
}

// Complete marks the step done.
func (s *StepState) Complete(now time.Time, message string) {
	s.Status = StepStatusCompleted
	s.EndTime = &now
	s.Message = message
}

// Fail marks the step failed with err.
func (s *StepState) Fail(now time.Time, err error) {
	s.Status = StepStatusFailed
	s.EndTime = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// Skip marks a step that never ran.
func (s *StepState) Skip(reason string) {
	s.Status = StepStatusSkipped
	s.Message = reason
}

// Duration is the time between start and end, or zero when the step has not
// finished.
func (s *StepState) Duration() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}

func (s *StepState) clone() StepState {
	c := *s
	c.Metadata = make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// RunState tracks one refresh. It is written by the running refresh and may be
// read concurrently through Snapshot.
type RunState struct {
	mu        sync.RWMutex
	id        string
	status    RunStatus
	startTime time.Time
	endTime   *time.Time
	steps     []*StepState
	err       string
}

// NewRunState creates a pending run with the given steps.
func NewRunState(id string, steps []Step) *RunState {
	rs := &RunState{id: id, status: RunStatusPending}
	for _, s := range steps {
		rs.steps = append(rs.steps, NewStepState(s.ID(), s.Name()))
	}
	return rs
}

// ID returns the run identifier.
func (rs *RunState) ID() string { return rs.id }

func (rs *RunState) start(now time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status = RunStatusRunning
	rs.startTime = now
}

func (rs *RunState) finish(now time.Time, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.endTime = &now
	if err != nil {
		rs.status = RunStatusFailed
		rs.err = err.Error()
		return
	}
	rs.status = RunStatusCompleted
}

// update applies fn to step i under the write lock.
func (rs *RunState) update(i int, fn func(*StepState)) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	fn(rs.steps[i])
}

// Snapshot is a copy of a RunState safe to hand to other goroutines.
type Snapshot struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Steps     []StepState `json:"steps"`
	Error     string      `json:"error,omitempty"`
}

// Snapshot copies the current state.
func (rs *RunState) Snapshot() Snapshot {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	snap := Snapshot{
		ID:        rs.id,
		Status:    rs.status,
		StartTime: rs.startTime,
		EndTime:   rs.endTime,
		Error:     rs.err,
		Steps:     make([]StepState, len(rs.steps)),
	}
	for i, s := range rs.steps {
		snap.Steps[i] = s.clone()
	}
	return snap
}
