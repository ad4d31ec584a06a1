package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentrun/agentrun/pkg/models"
)

// CockroachConfig holds connection pool tuning for a CockroachStore.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns the pool defaults used when none are given.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// CockroachStore persists AgenticSchedule and JobHistory rows in
// CockroachDB/Postgres, for deployments that outgrow MemoryStore.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStoreFromDSN opens a pooled connection and verifies it with
// a ping before returning, the same fail-fast shape as the rest of this
// build's SQL-backed stores.
func NewCockroachStoreFromDSN(dsn string, cfg *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &CockroachStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *CockroachStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CockroachStore) ActiveSchedules(ctx context.Context) ([]models.AgenticSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, type, cron_expression, interval_minutes,
		       action_type, action_config, custom_prompt,
		       next_run_at, last_run_at, is_active, created_at, updated_at
		FROM agentic_schedules
		WHERE is_active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var out []models.AgenticSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *CockroachStore) UpdateSchedule(ctx context.Context, sched models.AgenticSchedule) error {
	configJSON, err := json.Marshal(sched.ActionConfig)
	if err != nil {
		return fmt.Errorf("marshal action config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agentic_schedules SET
			cron_expression = $2, interval_minutes = $3,
			action_type = $4, action_config = $5, custom_prompt = $6,
			next_run_at = $7, last_run_at = $8, is_active = $9, updated_at = $10
		WHERE id = $1
	`,
		sched.ID,
		nullableString(sched.CronExpression),
		sched.IntervalMinutes,
		sched.ActionType,
		configJSON,
		nullableString(sched.CustomPrompt),
		nullableTime(sched.NextRunAt),
		nullableTime(sched.LastRunAt),
		sched.IsActive,
		sched.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("schedule %s not found", sched.ID)
	}
	return nil
}

// AgentStatus reads the agent's current run state from the agents table.
// An agent with no row is treated as active, matching MemoryStore's
// unseen-agent default.
func (s *CockroachStore) AgentStatus(ctx context.Context, agentID string) (AgentStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM agents WHERE id = $1`, agentID).Scan(&status)
	if err == sql.ErrNoRows {
		return AgentActive, nil
	}
	if err != nil {
		return "", fmt.Errorf("agent status: %w", err)
	}
	return AgentStatus(status), nil
}

func (s *CockroachStore) CreateJobHistory(ctx context.Context, job models.JobHistory) (models.JobHistory, error) {
	inputJSON, err := json.Marshal(job.InputData)
	if err != nil {
		return models.JobHistory{}, fmt.Errorf("marshal input data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_history (
			id, schedule_id, agent_id, action_type, scheduled_at,
			started_at, status, input_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		job.ID,
		job.ScheduleID,
		job.AgentID,
		job.ActionType,
		job.ScheduledAt,
		nullableTime(job.StartedAt),
		string(job.Status),
		inputJSON,
	)
	if err != nil {
		return models.JobHistory{}, fmt.Errorf("create job history: %w", err)
	}
	return job, nil
}

func (s *CockroachStore) UpdateJobHistory(ctx context.Context, job models.JobHistory) error {
	outputJSON, err := json.Marshal(job.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output data: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE job_history SET
			started_at = $2, completed_at = $3, duration_ms = $4,
			status = $5, error_message = $6, output_data = $7,
			result_summary = $8, tokens_used = $9, provider = $10, model = $11
		WHERE id = $1
	`,
		job.ID,
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.DurationMs,
		string(job.Status),
		nullableString(job.ErrorMessage),
		outputJSON,
		nullableString(job.ResultSummary),
		job.TokensUsed,
		nullableString(job.Provider),
		nullableString(job.Model),
	)
	if err != nil {
		return fmt.Errorf("update job history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job history: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job history %s not found", job.ID)
	}
	return nil
}

func (s *CockroachStore) RunningJobHistoryByStatus(ctx context.Context, status models.JobExecutionStatus) ([]models.JobHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, agent_id, action_type, scheduled_at,
		       started_at, completed_at, duration_ms, status, error_message,
		       input_data, output_data, result_summary, tokens_used, provider, model
		FROM job_history
		WHERE status = $1
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("running job history: %w", err)
	}
	defer rows.Close()

	var out []models.JobHistory
	for rows.Next() {
		job, err := scanJobHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job history: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(s scanner) (models.AgenticSchedule, error) {
	var (
		sched          models.AgenticSchedule
		scheduleType   string
		cronExpr       sql.NullString
		customPrompt   sql.NullString
		actionConfigJS []byte
		nextRunAt      sql.NullTime
		lastRunAt      sql.NullTime
	)

	err := s.Scan(
		&sched.ID, &sched.AgentID, &scheduleType, &cronExpr, &sched.IntervalMinutes,
		&sched.ActionType, &actionConfigJS, &customPrompt,
		&nextRunAt, &lastRunAt, &sched.IsActive, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return models.AgenticSchedule{}, err
	}

	sched.Type = models.ScheduleType(scheduleType)
	sched.CronExpression = cronExpr.String
	sched.CustomPrompt = customPrompt.String
	if nextRunAt.Valid {
		sched.NextRunAt = &nextRunAt.Time
	}
	if lastRunAt.Valid {
		sched.LastRunAt = &lastRunAt.Time
	}
	if len(actionConfigJS) > 0 {
		if err := json.Unmarshal(actionConfigJS, &sched.ActionConfig); err != nil {
			return models.AgenticSchedule{}, fmt.Errorf("unmarshal action config: %w", err)
		}
	}
	return sched, nil
}

func scanJobHistory(s scanner) (models.JobHistory, error) {
	var (
		job           models.JobHistory
		startedAt     sql.NullTime
		completedAt   sql.NullTime
		status        string
		errorMessage  sql.NullString
		inputJSON     []byte
		outputJSON    []byte
		resultSummary sql.NullString
		provider      sql.NullString
		model         sql.NullString
	)

	err := s.Scan(
		&job.ID, &job.ScheduleID, &job.AgentID, &job.ActionType, &job.ScheduledAt,
		&startedAt, &completedAt, &job.DurationMs, &status, &errorMessage,
		&inputJSON, &outputJSON, &resultSummary, &job.TokensUsed, &provider, &model,
	)
	if err != nil {
		return models.JobHistory{}, err
	}

	job.Status = models.JobExecutionStatus(status)
	job.ErrorMessage = errorMessage.String
	job.ResultSummary = resultSummary.String
	job.Provider = provider.String
	job.Model = model.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &job.InputData); err != nil {
			return models.JobHistory{}, fmt.Errorf("unmarshal input data: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &job.OutputData); err != nil {
			return models.JobHistory{}, fmt.Errorf("unmarshal output data: %w", err)
		}
	}
	return job, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
