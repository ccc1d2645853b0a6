// Package tasks tracks asynchronous pipeline runs. The default store is
// in-memory with TTL eviction of finished tasks; a Postgres-backed store is
// available when runs must survive restarts.
package tasks

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/models"
)

// Store is the task-tracking contract the pipeline and handlers depend on.
// Implementations must be safe for concurrent use and must never let an
// unknown task id propagate an error into the pipeline: log and move on.
type Store interface {
	// Init registers a new task in the received state. A duplicate id is
	// overwritten with a warning.
	Init(id, taskType string, inputDetails map[string]any)

	// UpdateStatus moves the task to status. A non-nil result or errMsg
	// replaces the stored value and an errMsg is also logged as an ERROR
	// entry; a nil errMsg combined with a non-failure status clears any
	// stale error from a previous attempt.
	UpdateStatus(id string, status models.Status, result, errMsg *string)

	// AddLog appends a timestamped message to the task log.
	AddLog(id, message string)

	// Get returns a deep copy of the task, or nil if unknown.
	Get(id string) *models.Task

	// Summaries lists all tasks, newest first.
	Summaries() []models.TaskSummary
}

// DefaultTTL is how long terminal tasks are kept before eviction.
const DefaultTTL = 24 * time.Hour

// MemoryStore is a mutex-guarded map of tasks with a background janitor that
// evicts terminal tasks older than the TTL.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]*models.Task
	ttl    time.Duration
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// MemoryStoreOption customizes a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithTTL overrides the terminal-task retention period. Zero disables
// eviction.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// NewMemoryStore creates the store and starts its eviction janitor.
func NewMemoryStore(logger *zap.Logger, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		tasks:  make(map[string]*models.Task),
		ttl:    DefaultTTL,
		logger: logger.Named("tasks"),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl > 0 {
		go s.janitor()
	}
	return s
}

// Close stops the eviction janitor. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) Init(id, taskType string, inputDetails map[string]any) {
	now := time.Now().UTC()

	details := make(map[string]any, len(inputDetails))
	for k, v := range inputDetails {
		details[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		s.logger.Warn("task already exists, overwriting", zap.String("task_id", id))
	}
	s.tasks[id] = &models.Task{
		TaskID:       id,
		TaskType:     taskType,
		Status:       models.StatusReceived,
		InputDetails: details,
		Logs: []models.LogEntry{
			{Timestamp: now, Message: "Task initialized."},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *MemoryStore) UpdateStatus(id string, status models.Status, result, errMsg *string) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		s.logger.Warn("status update for unknown task",
			zap.String("task_id", id),
			zap.String("status", string(status)))
		return
	}

	applyStatus(task, status, result, errMsg, now)
}

// applyStatus mutates task per the UpdateStatus contract, shared by both
// store implementations.
func applyStatus(task *models.Task, status models.Status, result, errMsg *string, now time.Time) {
	task.Status = status
	task.UpdatedAt = now
	if result != nil {
		r := *result
		task.Result = &r
	}
	if errMsg != nil {
		e := *errMsg
		task.Error = &e
		task.Logs = append(task.Logs, models.LogEntry{
			Timestamp: now,
			Message:   "ERROR: " + e,
		})
	} else if !status.Failure() && task.Error != nil {
		// A clean transition clears an error left over from an earlier
		// failed attempt.
		task.Error = nil
		task.Logs = append(task.Logs, models.LogEntry{
			Timestamp: now,
			Message:   "Previous error condition cleared.",
		})
	}
	task.Logs = append(task.Logs, models.LogEntry{
		Timestamp: now,
		Message:   "Status changed to: " + string(status) + ".",
	})
}

func (s *MemoryStore) AddLog(id, message string) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		s.logger.Warn("log entry for unknown task", zap.String("task_id", id))
		return
	}
	task.Logs = append(task.Logs, models.LogEntry{Timestamp: now, Message: message})
	task.UpdatedAt = now
}

func (s *MemoryStore) Get(id string) *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id].Clone()
}

func (s *MemoryStore) Summaries() []models.TaskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TaskSummary, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) janitor() {
	interval := s.ttl / 10
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now().UTC())
		}
	}
}

// evictExpired removes terminal tasks whose last update is older than the
// TTL. In-flight tasks are never evicted regardless of age.
func (s *MemoryStore) evictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, task := range s.tasks {
		if task.Status.Terminal() && now.Sub(task.UpdatedAt) > s.ttl {
			delete(s.tasks, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("evicted expired tasks", zap.Int("count", evicted))
	}
	return evicted
}

var _ Store = (*MemoryStore)(nil)
