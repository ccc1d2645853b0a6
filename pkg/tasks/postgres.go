package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/models"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS engine_tasks (
    task_id    TEXT PRIMARY KEY,
    task_type  TEXT NOT NULL,
    status     TEXT NOT NULL,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists tasks so runs survive restarts. Same contract as
// MemoryStore; each task is stored whole as JSONB because reads are by id
// and writes always rewrite the full task.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects and bootstraps the tasks table.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTasksTable); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, logger: logger.Named("tasks.postgres")}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Init(id, taskType string, inputDetails map[string]any) {
	now := time.Now().UTC()
	task := &models.Task{
		TaskID:       id,
		TaskType:     taskType,
		Status:       models.StatusReceived,
		InputDetails: inputDetails,
		Logs: []models.LogEntry{
			{Timestamp: now, Message: "Task initialized."},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.upsert(task); err != nil {
		s.logger.Error("init task failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (s *PostgresStore) UpdateStatus(id string, status models.Status, result, errMsg *string) {
	task := s.load(id)
	if task == nil {
		s.logger.Warn("status update for unknown task",
			zap.String("task_id", id),
			zap.String("status", string(status)))
		return
	}

	applyStatus(task, status, result, errMsg, time.Now().UTC())

	if err := s.upsert(task); err != nil {
		s.logger.Error("update status failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (s *PostgresStore) AddLog(id, message string) {
	task := s.load(id)
	if task == nil {
		s.logger.Warn("log entry for unknown task", zap.String("task_id", id))
		return
	}
	now := time.Now().UTC()
	task.Logs = append(task.Logs, models.LogEntry{Timestamp: now, Message: message})
	task.UpdatedAt = now
	if err := s.upsert(task); err != nil {
		s.logger.Error("add log failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (s *PostgresStore) Get(id string) *models.Task {
	return s.load(id)
}

func (s *PostgresStore) Summaries() []models.TaskSummary {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM engine_tasks ORDER BY created_at DESC`)
	if err != nil {
		s.logger.Error("list tasks failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var out []models.TaskSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			s.logger.Error("scan task failed", zap.Error(err))
			continue
		}
		var task models.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			s.logger.Error("decode task failed", zap.Error(err))
			continue
		}
		out = append(out, task.Summary())
	}
	return out
}

func (s *PostgresStore) load(id string) *models.Task {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM engine_tasks WHERE task_id = $1`, id).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		s.logger.Error("load task failed", zap.String("task_id", id), zap.Error(err))
		return nil
	}
	var task models.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		s.logger.Error("decode task failed", zap.String("task_id", id), zap.Error(err))
		return nil
	}
	return &task
}

func (s *PostgresStore) upsert(task *models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_tasks (task_id, task_type, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		task.TaskID, task.TaskType, string(task.Status), payload, task.CreatedAt, task.UpdatedAt)
	return err
}

var _ Store = (*PostgresStore)(nil)
