package engineinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresFlowUserContextRepository variables capturadas durante el recorrido
// (respuestas a preguntas). Una fila por variable, la última escritura gana.
type PostgresFlowUserContextRepository struct {
	db *sqlx.DB
}

var _ engine.FlowUserContextRepository = (*PostgresFlowUserContextRepository)(nil)

func NewPostgresFlowUserContextRepository(db *sqlx.DB) *PostgresFlowUserContextRepository {
	return &PostgresFlowUserContextRepository{db: db}
}

type dbFlowUserContext struct {
	UserIdentifier string    `db:"user_identifier"`
	BrandID        int64     `db:"brand_id"`
	FlowID         string    `db:"flow_id"`
	VariableName   string    `db:"variable_name"`
	VariableValue  string    `db:"variable_value"`
	NodeID         string    `db:"node_id"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *PostgresFlowUserContextRepository) UpsertVariable(ctx context.Context, fuc engine.FlowUserContext) error {
	dbFuc := dbFlowUserContext{
		UserIdentifier: fuc.UserIdentifier,
		BrandID:        fuc.BrandID,
		FlowID:         fuc.FlowID.String(),
		VariableName:   fuc.VariableName,
		VariableValue:  fuc.VariableValue,
		NodeID:         fuc.NodeID.String(),
		UpdatedAt:      fuc.UpdatedAt,
	}

	query := `
		INSERT INTO flow_user_contexts (
			user_identifier, brand_id, flow_id, variable_name, variable_value,
			node_id, updated_at
		) VALUES (
			:user_identifier, :brand_id, :flow_id, :variable_name, :variable_value,
			:node_id, :updated_at
		)
		ON CONFLICT (user_identifier, brand_id, flow_id, variable_name) DO UPDATE SET
			variable_value = EXCLUDED.variable_value,
			node_id = EXCLUDED.node_id,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, dbFuc); err != nil {
		return errx.Wrap(err, "failed to upsert flow user context variable", errx.TypeInternal).
			WithDetail("user_identifier", fuc.UserIdentifier).
			WithDetail("variable_name", fuc.VariableName)
	}

	return nil
}

func (r *PostgresFlowUserContextRepository) FindAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) ([]engine.FlowUserContext, error) {
	query := `
		SELECT user_identifier, brand_id, flow_id, variable_name,
			COALESCE(variable_value, '') AS variable_value,
			COALESCE(node_id, '') AS node_id, updated_at
		FROM flow_user_contexts
		WHERE user_identifier = $1 AND brand_id = $2 AND flow_id = $3
		ORDER BY updated_at ASC`

	var dbFucs []dbFlowUserContext
	err := r.db.SelectContext(ctx, &dbFucs, query, userIdentifier, brandID, flowID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find flow user context", errx.TypeInternal).
			WithDetail("user_identifier", userIdentifier).
			WithDetail("flow_id", flowID.String())
	}

	contexts := make([]engine.FlowUserContext, 0, len(dbFucs))
	for i := range dbFucs {
		contexts = append(contexts, engine.FlowUserContext{
			UserIdentifier: dbFucs[i].UserIdentifier,
			BrandID:        dbFucs[i].BrandID,
			FlowID:         kernel.FlowID(dbFucs[i].FlowID),
			VariableName:   dbFucs[i].VariableName,
			VariableValue:  dbFucs[i].VariableValue,
			NodeID:         kernel.NodeID(dbFucs[i].NodeID),
			UpdatedAt:      dbFucs[i].UpdatedAt,
		})
	}

	return contexts, nil
}

func (r *PostgresFlowUserContextRepository) DeleteAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) error {
	query := `
		DELETE FROM flow_user_contexts
		WHERE user_identifier = $1 AND brand_id = $2 AND flow_id = $3`

	if _, err := r.db.ExecContext(ctx, query, userIdentifier, brandID, flowID.String()); err != nil {
		return errx.Wrap(err, "failed to delete flow user context", errx.TypeInternal).
			WithDetail("user_identifier", userIdentifier).
			WithDetail("flow_id", flowID.String())
	}

	return nil
}
