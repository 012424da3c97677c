package flowinfra

import (
	"context"
	"database/sql"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/flow"
	"github.com/jmoiron/sqlx"
)

type PostgresNodeDetailRepository struct {
	db *sqlx.DB
}

var _ flow.NodeDetailRepository = (*PostgresNodeDetailRepository)(nil)

func NewPostgresNodeDetailRepository(db *sqlx.DB) *PostgresNodeDetailRepository {
	return &PostgresNodeDetailRepository{db: db}
}

type dbNodeDetail struct {
	NodeID            string `db:"node_id"`
	NodeName          string `db:"node_name"`
	Category          string `db:"category"`
	UserInputRequired bool   `db:"user_input_required"`
	IsInternal        bool   `db:"is_internal"`
}

func toDomainNodeDetail(dbD *dbNodeDetail) flow.NodeDetail {
	return flow.NodeDetail{
		NodeID:            flow.NodeType(dbD.NodeID),
		NodeName:          dbD.NodeName,
		Category:          flow.NodeCategory(dbD.Category),
		UserInputRequired: dbD.UserInputRequired,
		IsInternal:        dbD.IsInternal,
	}
}

// Seed inserta el catálogo; en arranques posteriores actualiza las filas
// existentes para que el catálogo en código sea siempre el vigente.
func (r *PostgresNodeDetailRepository) Seed(ctx context.Context, details []flow.NodeDetail) error {
	query := `
		INSERT INTO node_details (
			node_id, node_name, category, user_input_required, is_internal
		) VALUES (
			:node_id, :node_name, :category, :user_input_required, :is_internal
		)
		ON CONFLICT (node_id) DO UPDATE SET
			node_name = EXCLUDED.node_name,
			category = EXCLUDED.category,
			user_input_required = EXCLUDED.user_input_required,
			is_internal = EXCLUDED.is_internal`

	for _, d := range details {
		dbD := dbNodeDetail{
			NodeID:            string(d.NodeID),
			NodeName:          d.NodeName,
			Category:          string(d.Category),
			UserInputRequired: d.UserInputRequired,
			IsInternal:        d.IsInternal,
		}

		if _, err := r.db.NamedExecContext(ctx, query, dbD); err != nil {
			return errx.Wrap(err, "failed to seed node detail", errx.TypeInternal).
				WithDetail("node_id", string(d.NodeID))
		}
	}
	return nil
}

func (r *PostgresNodeDetailRepository) FindAll(ctx context.Context) ([]flow.NodeDetail, error) {
	query := `
		SELECT node_id, node_name, category, user_input_required, is_internal
		FROM node_details
		ORDER BY category ASC, node_id ASC`

	var dbDetails []dbNodeDetail
	err := r.db.SelectContext(ctx, &dbDetails, query)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list node details", errx.TypeInternal)
	}

	details := make([]flow.NodeDetail, 0, len(dbDetails))
	for i := range dbDetails {
		details = append(details, toDomainNodeDetail(&dbDetails[i]))
	}

	return details, nil
}

func (r *PostgresNodeDetailRepository) FindByNodeID(ctx context.Context, nodeID flow.NodeType) (*flow.NodeDetail, error) {
	query := `
		SELECT node_id, node_name, category, user_input_required, is_internal
		FROM node_details
		WHERE node_id = $1`

	var dbD dbNodeDetail
	err := r.db.GetContext(ctx, &dbD, query, string(nodeID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrNodeDetailNotFound().WithDetail("node_id", string(nodeID))
		}
		return nil, errx.Wrap(err, "failed to find node detail", errx.TypeInternal).
			WithDetail("node_id", string(nodeID))
	}

	detail := toDomainNodeDetail(&dbD)
	return &detail, nil
}

func (r *PostgresNodeDetailRepository) FindByCategory(ctx context.Context, category flow.NodeCategory) ([]flow.NodeDetail, error) {
	query := `
		SELECT node_id, node_name, category, user_input_required, is_internal
		FROM node_details
		WHERE category = $1
		ORDER BY node_id ASC`

	var dbDetails []dbNodeDetail
	err := r.db.SelectContext(ctx, &dbDetails, query, string(category))
	if err != nil {
		return nil, errx.Wrap(err, "failed to find node details by category", errx.TypeInternal).
			WithDetail("category", string(category))
	}

	details := make([]flow.NodeDetail, 0, len(dbDetails))
	for i := range dbDetails {
		details = append(details, toDomainNodeDetail(&dbDetails[i]))
	}

	return details, nil
}
