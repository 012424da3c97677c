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

type PostgresDelayRepository struct {
	db *sqlx.DB
}

var _ engine.DelayRepository = (*PostgresDelayRepository)(nil)

func NewPostgresDelayRepository(db *sqlx.DB) *PostgresDelayRepository {
	return &PostgresDelayRepository{db: db}
}

type dbDelay struct {
	ID               string          `db:"id"`
	UserIdentifier   string          `db:"user_identifier"`
	BrandID          int64           `db:"brand_id"`
	FlowID           string          `db:"flow_id"`
	DelayNodeID      string          `db:"delay_node_id"`
	DelayNodeData    json.RawMessage `db:"delay_node_data"`
	DelayDuration    int             `db:"delay_duration"`
	DelayUnit        string          `db:"delay_unit"`
	WaitTimeSeconds  int64           `db:"wait_time_seconds"`
	DelayStartedAt   time.Time       `db:"delay_started_at"`
	DelayCompletesAt time.Time       `db:"delay_completes_at"`
	Processed        bool            `db:"processed"`
	Channel          string          `db:"channel"`
	ChannelAccountID string          `db:"channel_account_id"`
}

const delayColumns = `
	id, user_identifier, brand_id, flow_id, delay_node_id, delay_node_data,
	delay_duration, delay_unit, wait_time_seconds, delay_started_at,
	delay_completes_at, processed, COALESCE(channel, '') AS channel,
	COALESCE(channel_account_id, '') AS channel_account_id`

func toDBDelay(delay engine.Delay) (*dbDelay, error) {
	var nodeDataJSON json.RawMessage
	if len(delay.DelayNodeData) > 0 {
		data, err := json.Marshal(delay.DelayNodeData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal delay node data: %w", err)
		}
		nodeDataJSON = data
	}

	return &dbDelay{
		ID:               delay.ID.String(),
		UserIdentifier:   delay.UserIdentifier,
		BrandID:          delay.BrandID,
		FlowID:           delay.FlowID.String(),
		DelayNodeID:      delay.DelayNodeID.String(),
		DelayNodeData:    nodeDataJSON,
		DelayDuration:    delay.DelayDuration,
		DelayUnit:        delay.DelayUnit,
		WaitTimeSeconds:  delay.WaitTimeSeconds,
		DelayStartedAt:   delay.DelayStartedAt,
		DelayCompletesAt: delay.DelayCompletesAt,
		Processed:        delay.Processed,
		Channel:          delay.Channel,
		ChannelAccountID: delay.ChannelAccountID,
	}, nil
}

func toDomainDelay(dbD *dbDelay) (*engine.Delay, error) {
	var nodeData map[string]any
	if len(dbD.DelayNodeData) > 0 && string(dbD.DelayNodeData) != "null" {
		if err := json.Unmarshal(dbD.DelayNodeData, &nodeData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delay node data: %w", err)
		}
	}

	return &engine.Delay{
		ID:               kernel.DelayID(dbD.ID),
		UserIdentifier:   dbD.UserIdentifier,
		BrandID:          dbD.BrandID,
		FlowID:           kernel.FlowID(dbD.FlowID),
		DelayNodeID:      kernel.NodeID(dbD.DelayNodeID),
		DelayNodeData:    nodeData,
		DelayDuration:    dbD.DelayDuration,
		DelayUnit:        dbD.DelayUnit,
		WaitTimeSeconds:  dbD.WaitTimeSeconds,
		DelayStartedAt:   dbD.DelayStartedAt,
		DelayCompletesAt: dbD.DelayCompletesAt,
		Processed:        dbD.Processed,
		Channel:          dbD.Channel,
		ChannelAccountID: dbD.ChannelAccountID,
	}, nil
}

func (r *PostgresDelayRepository) Create(ctx context.Context, delay engine.Delay) error {
	dbD, err := toDBDelay(delay)
	if err != nil {
		return errx.Wrap(err, "failed to convert delay", errx.TypeInternal).
			WithDetail("delay_id", delay.ID)
	}

	query := `
		INSERT INTO delays (
			id, user_identifier, brand_id, flow_id, delay_node_id, delay_node_data,
			delay_duration, delay_unit, wait_time_seconds, delay_started_at,
			delay_completes_at, processed, channel, channel_account_id
		) VALUES (
			:id, :user_identifier, :brand_id, :flow_id, :delay_node_id, :delay_node_data,
			:delay_duration, :delay_unit, :wait_time_seconds, :delay_started_at,
			:delay_completes_at, :processed, :channel, :channel_account_id
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbD)
	if err != nil {
		return errx.Wrap(err, "failed to create delay", errx.TypeInternal).
			WithDetail("delay_id", delay.ID)
	}

	return nil
}

func (r *PostgresDelayRepository) FindByID(ctx context.Context, id kernel.DelayID) (*engine.Delay, error) {
	query := fmt.Sprintf(`SELECT %s FROM delays WHERE id = $1`, delayColumns)

	var dbD dbDelay
	err := r.db.GetContext(ctx, &dbD, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrDelayNotFound().WithDetail("delay_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find delay by id", errx.TypeInternal).
			WithDetail("delay_id", string(id))
	}

	return toDomainDelay(&dbD)
}

// FindDue devuelve los delays vencidos más antiguos primero. El scheduler los
// procesa en ese orden para no dejar rezagados los más viejos.
func (r *PostgresDelayRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*engine.Delay, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM delays
		WHERE processed = FALSE AND delay_completes_at <= $1
		ORDER BY delay_completes_at ASC
		LIMIT $2`, delayColumns)

	var dbDelays []dbDelay
	err := r.db.SelectContext(ctx, &dbDelays, query, now, limit)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find due delays", errx.TypeInternal)
	}

	delays := make([]*engine.Delay, 0, len(dbDelays))
	for i := range dbDelays {
		delay, err := toDomainDelay(&dbDelays[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert delay", errx.TypeInternal)
		}
		delays = append(delays, delay)
	}

	return delays, nil
}

func (r *PostgresDelayRepository) FindActive(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID, nodeID kernel.NodeID) (*engine.Delay, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM delays
		WHERE user_identifier = $1 AND brand_id = $2 AND flow_id = $3
			AND delay_node_id = $4 AND processed = FALSE
		ORDER BY delay_started_at DESC
		LIMIT 1`, delayColumns)

	var dbD dbDelay
	err := r.db.GetContext(ctx, &dbD, query, userIdentifier, brandID, flowID.String(), nodeID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrDelayNotFound().
				WithDetail("user_identifier", userIdentifier).
				WithDetail("flow_id", flowID.String()).
				WithDetail("delay_node_id", nodeID.String())
		}
		return nil, errx.Wrap(err, "failed to find active delay", errx.TypeInternal).
			WithDetail("user_identifier", userIdentifier).
			WithDetail("flow_id", flowID.String())
	}

	return toDomainDelay(&dbD)
}

func (r *PostgresDelayRepository) MarkProcessed(ctx context.Context, id kernel.DelayID) error {
	query := `UPDATE delays SET processed = TRUE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to mark delay as processed", errx.TypeInternal).
			WithDetail("delay_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrDelayNotFound().WithDetail("delay_id", string(id))
	}

	return nil
}
