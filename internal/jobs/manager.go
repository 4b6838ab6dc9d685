package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"quick-translate/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// errStaleJob is returned for mutations addressed to a job that is no longer current.
var errStaleJob = errors.New("stale job id")

// Manager tracks the single allowed active job and its transitions.
// Mutations name the job they target so that events for a replaced job are dropped.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
		now: time.Now,
	}
}

// Start claims the job slot for req and moves it to pending state.
func (m *Manager) Start(req domain.TranslateRequest) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return domain.Job{}, ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:        req.ID,
		Status:    domain.JobStatusPending,
		Request:   req,
		StartedAt: m.now().UTC(),
	}
	return m.current, nil
}

// Transition validates and applies a state transition for job id.
func (m *Manager) Transition(id string, status domain.JobStatus) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(id, status); err != nil {
		return domain.Job{}, err
	}
	return m.current, nil
}

// Fail moves job id to failed state with a user-visible error message.
func (m *Manager) Fail(id, message string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(id, domain.JobStatusFailed); err != nil {
		return domain.Job{}, err
	}
	m.current.Error = message
	return m.current, nil
}

func (m *Manager) transitionLocked(id string, status domain.JobStatus) error {
	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if id != m.current.ID {
		return errStaleJob
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	switch status {
	case domain.JobStatusStreaming:
		m.current.Output = ""
		m.current.Progress = nil
	case domain.JobStatusDone:
		done := 1.0
		m.current.Progress = &done
		m.current.FinishedAt = m.now().UTC()
	case domain.JobStatusFailed, domain.JobStatusCancelled:
		m.current.FinishedAt = m.now().UTC()
	case domain.JobStatusIdle:
		m.current.Error = ""
	}

	m.current.Status = status
	return nil
}

// AppendChunk appends streamed output while job id is streaming.
func (m *Manager) AppendChunk(id, chunk string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isStreaming(id) {
		return domain.Job{}, false
	}
	m.current.Output += chunk
	return m.current, true
}

// SetProgress replaces the last reported progress fraction while job id is streaming.
func (m *Manager) SetProgress(id string, fraction float64) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isStreaming(id) {
		return domain.Job{}, false
	}
	m.current.Progress = &fraction
	return m.current, true
}

// AdoptFinal uses the full engine output only when nothing was streamed.
func (m *Manager) AdoptFinal(id, output string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isStreaming(id) || m.current.Output != "" {
		return domain.Job{}, false
	}
	m.current.Output = output
	return m.current, true
}

// Cancel moves job id to cancelled state, recording an optional reason.
func (m *Manager) Cancel(id, reason string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return domain.Job{}, ErrNoRunningJob
	}
	if id != m.current.ID {
		return domain.Job{}, errStaleJob
	}
	m.current.Status = domain.JobStatusCancelled
	m.current.Reason = reason
	m.current.FinishedAt = m.now().UTC()
	return m.current, nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

func (m *Manager) isStreaming(id string) bool {
	return m.current.ID == id && m.current.Status == domain.JobStatusStreaming
}

// isRunning checks if a status holds the single-flight slot.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusPending, domain.JobStatusStreaming:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusPending
	case domain.JobStatusPending:
		return to == domain.JobStatusStreaming || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusStreaming:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return to == domain.JobStatusPending || to == domain.JobStatusIdle
	default:
		return false
	}
}
