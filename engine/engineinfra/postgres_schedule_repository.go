package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresScheduleRepository persiste los schedules que disparan flujos por
// horario. target_identifiers va como JSONB porque la audiencia es una lista
// de identidades arbitrarias por canal.
type PostgresScheduleRepository struct {
	db *sqlx.DB
}

var _ engine.FlowScheduleRepository = (*PostgresScheduleRepository)(nil)

func NewPostgresScheduleRepository(db *sqlx.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

type dbFlowSchedule struct {
	ID                string          `db:"id"`
	BrandID           int64           `db:"brand_id"`
	AccountID         int64           `db:"account_id"`
	FlowID            string          `db:"flow_id"`
	ScheduleType      string          `db:"schedule_type"`
	CronExpression    *string         `db:"cron_expression"`
	IntervalSeconds   *int            `db:"interval_seconds"`
	ScheduledAt       *time.Time      `db:"scheduled_at"`
	Channel           string          `db:"channel"`
	ChannelAccountID  string          `db:"channel_account_id"`
	TargetIdentifiers json.RawMessage `db:"target_identifiers"`
	IsActive          bool            `db:"is_active"`
	LastRunAt         *time.Time      `db:"last_run_at"`
	NextRunAt         *time.Time      `db:"next_run_at"`
	RunCount          int             `db:"run_count"`
	Timezone          string          `db:"timezone"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

const scheduleColumns = `
	id, brand_id, account_id, flow_id, schedule_type, cron_expression,
	interval_seconds, scheduled_at, COALESCE(channel, '') AS channel,
	COALESCE(channel_account_id, '') AS channel_account_id, target_identifiers,
	is_active, last_run_at, next_run_at, run_count,
	COALESCE(timezone, 'UTC') AS timezone, created_at, updated_at`

func toDBFlowSchedule(s engine.FlowSchedule) (*dbFlowSchedule, error) {
	targets, err := json.Marshal(s.TargetIdentifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal target identifiers: %w", err)
	}

	return &dbFlowSchedule{
		ID:                s.ID.String(),
		BrandID:           s.BrandID,
		AccountID:         s.AccountID,
		FlowID:            s.FlowID.String(),
		ScheduleType:      string(s.ScheduleType),
		CronExpression:    s.CronExpression,
		IntervalSeconds:   s.IntervalSeconds,
		ScheduledAt:       s.ScheduledAt,
		Channel:           s.Channel,
		ChannelAccountID:  s.ChannelAccountID,
		TargetIdentifiers: targets,
		IsActive:          s.IsActive,
		LastRunAt:         s.LastRunAt,
		NextRunAt:         s.NextRunAt,
		RunCount:          s.RunCount,
		Timezone:          s.Timezone,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}, nil
}

func toDomainFlowSchedule(dbS *dbFlowSchedule) (*engine.FlowSchedule, error) {
	var targets []string
	if len(dbS.TargetIdentifiers) > 0 && string(dbS.TargetIdentifiers) != "null" {
		if err := json.Unmarshal(dbS.TargetIdentifiers, &targets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target identifiers: %w", err)
		}
	}

	return &engine.FlowSchedule{
		ID:                kernel.ScheduleID(dbS.ID),
		BrandID:           dbS.BrandID,
		AccountID:         dbS.AccountID,
		FlowID:            kernel.FlowID(dbS.FlowID),
		ScheduleType:      engine.ScheduleType(dbS.ScheduleType),
		CronExpression:    dbS.CronExpression,
		IntervalSeconds:   dbS.IntervalSeconds,
		ScheduledAt:       dbS.ScheduledAt,
		Channel:           dbS.Channel,
		ChannelAccountID:  dbS.ChannelAccountID,
		TargetIdentifiers: targets,
		IsActive:          dbS.IsActive,
		LastRunAt:         dbS.LastRunAt,
		NextRunAt:         dbS.NextRunAt,
		RunCount:          dbS.RunCount,
		Timezone:          dbS.Timezone,
		CreatedAt:         dbS.CreatedAt,
		UpdatedAt:         dbS.UpdatedAt,
	}, nil
}

func (r *PostgresScheduleRepository) Create(ctx context.Context, s engine.FlowSchedule) error {
	dbS, err := toDBFlowSchedule(s)
	if err != nil {
		return errx.Wrap(err, "failed to convert schedule", errx.TypeInternal).
			WithDetail("schedule_id", s.ID)
	}

	query := `
		INSERT INTO flow_schedules (
			id, brand_id, account_id, flow_id, schedule_type, cron_expression,
			interval_seconds, scheduled_at, channel, channel_account_id,
			target_identifiers, is_active, last_run_at, next_run_at, run_count,
			timezone, created_at, updated_at
		) VALUES (
			:id, :brand_id, :account_id, :flow_id, :schedule_type, :cron_expression,
			:interval_seconds, :scheduled_at, :channel, :channel_account_id,
			:target_identifiers, :is_active, :last_run_at, :next_run_at, :run_count,
			:timezone, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbS)
	if err != nil {
		return errx.Wrap(err, "failed to create schedule", errx.TypeInternal).
			WithDetail("schedule_id", s.ID)
	}

	return nil
}

func (r *PostgresScheduleRepository) FindByID(ctx context.Context, id kernel.ScheduleID) (*engine.FlowSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM flow_schedules WHERE id = $1`, scheduleColumns)

	var dbS dbFlowSchedule
	err := r.db.GetContext(ctx, &dbS, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrScheduleNotFound().WithDetail("schedule_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find schedule by id", errx.TypeInternal).
			WithDetail("schedule_id", string(id))
	}

	return toDomainFlowSchedule(&dbS)
}

func (r *PostgresScheduleRepository) FindByFlow(ctx context.Context, flowID kernel.FlowID) ([]*engine.FlowSchedule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM flow_schedules
		WHERE flow_id = $1
		ORDER BY created_at DESC`, scheduleColumns)

	var dbSchedules []dbFlowSchedule
	err := r.db.SelectContext(ctx, &dbSchedules, query, flowID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find schedules by flow", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	return toDomainSchedules(dbSchedules)
}

// FindDue devuelve los schedules activos vencidos, los más atrasados primero
func (r *PostgresScheduleRepository) FindDue(ctx context.Context, now time.Time) ([]*engine.FlowSchedule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM flow_schedules
		WHERE is_active = TRUE
			AND next_run_at IS NOT NULL
			AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT 100`, scheduleColumns)

	var dbSchedules []dbFlowSchedule
	err := r.db.SelectContext(ctx, &dbSchedules, query, now)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find due schedules", errx.TypeInternal)
	}

	return toDomainSchedules(dbSchedules)
}

func (r *PostgresScheduleRepository) Update(ctx context.Context, s engine.FlowSchedule) error {
	dbS, err := toDBFlowSchedule(s)
	if err != nil {
		return errx.Wrap(err, "failed to convert schedule", errx.TypeInternal).
			WithDetail("schedule_id", s.ID)
	}
	dbS.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE flow_schedules SET
			schedule_type = :schedule_type,
			cron_expression = :cron_expression,
			interval_seconds = :interval_seconds,
			scheduled_at = :scheduled_at,
			channel = :channel,
			channel_account_id = :channel_account_id,
			target_identifiers = :target_identifiers,
			is_active = :is_active,
			last_run_at = :last_run_at,
			next_run_at = :next_run_at,
			run_count = :run_count,
			timezone = :timezone,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, dbS)
	if err != nil {
		return errx.Wrap(err, "failed to update schedule", errx.TypeInternal).
			WithDetail("schedule_id", s.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return engine.ErrScheduleNotFound().WithDetail("schedule_id", s.ID)
	}

	return nil
}

func (r *PostgresScheduleRepository) Delete(ctx context.Context, id kernel.ScheduleID) error {
	query := `DELETE FROM flow_schedules WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete schedule", errx.TypeInternal).
			WithDetail("schedule_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return engine.ErrScheduleNotFound().WithDetail("schedule_id", string(id))
	}

	return nil
}

func toDomainSchedules(dbSchedules []dbFlowSchedule) ([]*engine.FlowSchedule, error) {
	schedules := make([]*engine.FlowSchedule, 0, len(dbSchedules))
	for i := range dbSchedules {
		s, err := toDomainFlowSchedule(&dbSchedules[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert schedule", errx.TypeInternal)
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}
