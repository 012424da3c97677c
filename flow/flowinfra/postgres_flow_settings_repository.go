package flowinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

type PostgresFlowSettingsRepository struct {
	db *sqlx.DB
}

var _ flow.FlowSettingsRepository = (*PostgresFlowSettingsRepository)(nil)

func NewPostgresFlowSettingsRepository(db *sqlx.DB) *PostgresFlowSettingsRepository {
	return &PostgresFlowSettingsRepository{db: db}
}

type dbFlowSettings struct {
	FlowID    string          `db:"flow_id"`
	NodeID    string          `db:"node_id"`
	Email     json.RawMessage `db:"email"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toDBFlowSettings(s flow.FlowSettings) (*dbFlowSettings, error) {
	var emailJSON json.RawMessage
	if s.Email != nil {
		data, err := json.Marshal(s.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal email settings: %w", err)
		}
		emailJSON = data
	}

	return &dbFlowSettings{
		FlowID:    s.FlowID.String(),
		NodeID:    s.NodeID.String(),
		Email:     emailJSON,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

func toDomainFlowSettings(dbS *dbFlowSettings) (*flow.FlowSettings, error) {
	var email *flow.EmailSettings
	if len(dbS.Email) > 0 && string(dbS.Email) != "null" {
		email = &flow.EmailSettings{}
		if err := json.Unmarshal(dbS.Email, email); err != nil {
			return nil, fmt.Errorf("failed to unmarshal email settings: %w", err)
		}
	}

	return &flow.FlowSettings{
		FlowID:    kernel.FlowID(dbS.FlowID),
		NodeID:    kernel.NodeID(dbS.NodeID),
		Email:     email,
		UpdatedAt: dbS.UpdatedAt,
	}, nil
}

func (r *PostgresFlowSettingsRepository) Upsert(ctx context.Context, s flow.FlowSettings) error {
	dbS, err := toDBFlowSettings(s)
	if err != nil {
		return errx.Wrap(err, "failed to convert flow settings", errx.TypeInternal).
			WithDetail("flow_id", s.FlowID.String()).
			WithDetail("node_id", s.NodeID.String())
	}

	query := `
		INSERT INTO flow_settings (flow_id, node_id, email, updated_at)
		VALUES (:flow_id, :node_id, :email, :updated_at)
		ON CONFLICT (flow_id, node_id) DO UPDATE SET
			email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, dbS); err != nil {
		return errx.Wrap(err, "failed to upsert flow settings", errx.TypeInternal).
			WithDetail("flow_id", s.FlowID.String()).
			WithDetail("node_id", s.NodeID.String())
	}

	return nil
}

func (r *PostgresFlowSettingsRepository) FindByFlowAndNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.FlowSettings, error) {
	query := `
		SELECT flow_id, node_id, email, updated_at
		FROM flow_settings
		WHERE flow_id = $1 AND node_id = $2`

	var dbS dbFlowSettings
	err := r.db.GetContext(ctx, &dbS, query, flowID.String(), nodeID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrFlowSettingsNotFound().
				WithDetail("flow_id", flowID.String()).
				WithDetail("node_id", nodeID.String())
		}
		return nil, errx.Wrap(err, "failed to find flow settings", errx.TypeInternal).
			WithDetail("flow_id", flowID.String()).
			WithDetail("node_id", nodeID.String())
	}

	return toDomainFlowSettings(&dbS)
}
