package flowinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresFlowRepository struct {
	db *sqlx.DB
}

var _ flow.FlowRepository = (*PostgresFlowRepository)(nil)

func NewPostgresFlowRepository(db *sqlx.DB) *PostgresFlowRepository {
	return &PostgresFlowRepository{db: db}
}

// ============================================================================
// DB structs
// ============================================================================

// dbFlow is an intermediate struct for database operations
type dbFlow struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Status    string          `db:"status"`
	BrandID   int64           `db:"brand_id"`
	AccountID int64           `db:"account_id"`
	IsPro     bool            `db:"is_pro"`
	Transform json.RawMessage `db:"transform"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toDBFlow(f flow.Flow) (*dbFlow, error) {
	var transformJSON json.RawMessage
	if f.Transform != nil {
		data, err := json.Marshal(f.Transform)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transform: %w", err)
		}
		transformJSON = data
	}

	return &dbFlow{
		ID:        f.ID.String(),
		Name:      f.Name,
		Status:    string(f.Status),
		BrandID:   f.BrandID,
		AccountID: f.AccountID,
		IsPro:     f.IsPro,
		Transform: transformJSON,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

func toDomainFlow(dbF *dbFlow) (*flow.Flow, error) {
	var transform *flow.Transform
	if len(dbF.Transform) > 0 && string(dbF.Transform) != "null" {
		transform = &flow.Transform{}
		if err := json.Unmarshal(dbF.Transform, transform); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transform: %w", err)
		}
	}

	return &flow.Flow{
		ID:        kernel.FlowID(dbF.ID),
		Name:      dbF.Name,
		Status:    flow.FlowStatus(dbF.Status),
		BrandID:   dbF.BrandID,
		AccountID: dbF.AccountID,
		IsPro:     dbF.IsPro,
		Transform: transform,
		CreatedAt: dbF.CreatedAt,
		UpdatedAt: dbF.UpdatedAt,
	}, nil
}

// dbFlowNode guarda el documento completo del builder en node_data
type dbFlowNode struct {
	FlowID       string          `db:"flow_id"`
	NodeID       string          `db:"node_id"`
	NodeType     string          `db:"node_type"`
	FlowNodeType string          `db:"flow_node_type"`
	NodeData     json.RawMessage `db:"node_data"`
	Position     int             `db:"position"`
}

func toDBFlowNode(n flow.Node) (*dbFlowNode, error) {
	dataJSON := []byte("{}")
	if n.Data != nil {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal node data: %w", err)
		}
		dataJSON = data
	}

	return &dbFlowNode{
		FlowID:       n.FlowID.String(),
		NodeID:       n.NodeID.String(),
		NodeType:     string(n.Type),
		FlowNodeType: n.FlowNodeType,
		NodeData:     dataJSON,
		Position:     n.Position,
	}, nil
}

func toDomainFlowNode(dbN *dbFlowNode) (*flow.Node, error) {
	var data map[string]any
	if len(dbN.NodeData) > 0 && string(dbN.NodeData) != "null" {
		if err := json.Unmarshal(dbN.NodeData, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node data: %w", err)
		}
	}

	return &flow.Node{
		FlowID:       kernel.FlowID(dbN.FlowID),
		NodeID:       kernel.NodeID(dbN.NodeID),
		Type:         flow.NodeType(dbN.NodeType),
		FlowNodeType: dbN.FlowNodeType,
		Data:         data,
		Position:     dbN.Position,
	}, nil
}

type dbFlowEdge struct {
	FlowID       string `db:"flow_id"`
	EdgeID       string `db:"edge_id"`
	SourceNodeID string `db:"source_node_id"`
	TargetNodeID string `db:"target_node_id"`
	Position     int    `db:"position"`
}

func toDomainFlowEdge(dbE *dbFlowEdge) flow.Edge {
	return flow.Edge{
		FlowID:       kernel.FlowID(dbE.FlowID),
		EdgeID:       kernel.EdgeID(dbE.EdgeID),
		SourceNodeID: dbE.SourceNodeID,
		TargetNodeID: dbE.TargetNodeID,
		Position:     dbE.Position,
	}
}

type dbFlowTrigger struct {
	ID            string          `db:"id"`
	FlowID        string          `db:"flow_id"`
	NodeID        string          `db:"node_id"`
	TriggerType   string          `db:"trigger_type"`
	TriggerValues json.RawMessage `db:"trigger_values"`
	Position      int             `db:"position"`
}

func toDBFlowTrigger(t flow.Trigger) (*dbFlowTrigger, error) {
	valuesJSON := []byte("[]")
	if len(t.Values) > 0 {
		data, err := json.Marshal(t.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trigger values: %w", err)
		}
		valuesJSON = data
	}

	return &dbFlowTrigger{
		ID:            t.ID.String(),
		FlowID:        t.FlowID.String(),
		NodeID:        t.NodeID.String(),
		TriggerType:   string(t.Type),
		TriggerValues: valuesJSON,
		Position:      t.Position,
	}, nil
}

func toDomainFlowTrigger(dbT *dbFlowTrigger) (*flow.Trigger, error) {
	var values []string
	if len(dbT.TriggerValues) > 0 && string(dbT.TriggerValues) != "null" {
		if err := json.Unmarshal(dbT.TriggerValues, &values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger values: %w", err)
		}
	}

	return &flow.Trigger{
		ID:       kernel.TriggerID(dbT.ID),
		FlowID:   kernel.FlowID(dbT.FlowID),
		NodeID:   kernel.NodeID(dbT.NodeID),
		Type:     flow.TriggerType(dbT.TriggerType),
		Values:   values,
		Position: dbT.Position,
	}, nil
}

// ============================================================================
// Flow CRUD
// ============================================================================

func (r *PostgresFlowRepository) Create(ctx context.Context, f flow.Flow) error {
	dbF, err := toDBFlow(f)
	if err != nil {
		return errx.Wrap(err, "failed to convert flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	query := `
		INSERT INTO flows (
			id, name, status, brand_id, account_id, is_pro, transform,
			created_at, updated_at
		) VALUES (
			:id, :name, :status, :brand_id, :account_id, :is_pro, :transform,
			:created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbF)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return flow.ErrInvalidFlowData().
				WithDetail("reason", "flow id already exists").
				WithDetail("flow_id", f.ID.String())
		}
		return errx.Wrap(err, "failed to create flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	return nil
}

func (r *PostgresFlowRepository) FindByID(ctx context.Context, id kernel.FlowID) (*flow.Flow, error) {
	query := `
		SELECT
			id, name, status, brand_id, account_id, is_pro, transform,
			created_at, updated_at
		FROM flows
		WHERE id = $1`

	var dbF dbFlow
	err := r.db.GetContext(ctx, &dbF, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find flow by id", errx.TypeInternal).
			WithDetail("flow_id", id.String())
	}

	return toDomainFlow(&dbF)
}

func (r *PostgresFlowRepository) Update(ctx context.Context, f flow.Flow) error {
	dbF, err := toDBFlow(f)
	if err != nil {
		return errx.Wrap(err, "failed to convert flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	query := `
		UPDATE flows SET
			name = :name,
			status = :status,
			is_pro = :is_pro,
			transform = :transform,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, dbF)
	if err != nil {
		return errx.Wrap(err, "failed to update flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return flow.ErrFlowNotFound().WithDetail("flow_id", f.ID.String())
	}

	return nil
}

func (r *PostgresFlowRepository) Delete(ctx context.Context, id kernel.FlowID) error {
	query := `DELETE FROM flows WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete flow", errx.TypeInternal).
			WithDetail("flow_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return flow.ErrFlowNotFound().WithDetail("flow_id", id.String())
	}

	return nil
}

func (r *PostgresFlowRepository) UpdateStatus(ctx context.Context, id kernel.FlowID, status flow.FlowStatus) error {
	query := `UPDATE flows SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, string(status), id.String())
	if err != nil {
		return errx.Wrap(err, "failed to update flow status", errx.TypeInternal).
			WithDetail("flow_id", id.String()).
			WithDetail("status", string(status))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return flow.ErrFlowNotFound().WithDetail("flow_id", id.String())
	}

	return nil
}

func (r *PostgresFlowRepository) List(ctx context.Context, req flow.FlowListRequest) (flow.FlowListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("brand_id = $%d", argPos))
	args = append(args, req.BrandID)
	argPos++

	if req.AccountID != nil {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", argPos))
		args = append(args, *req.AccountID)
		argPos++
	}

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM flows WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return flow.FlowListResponse{}, errx.Wrap(err, "failed to count flows", errx.TypeInternal)
	}

	// Data query
	dataQuery := fmt.Sprintf(`
		SELECT
			id, name, status, brand_id, account_id, is_pro, transform,
			created_at, updated_at
		FROM flows
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbFlows []dbFlow
	err = r.db.SelectContext(ctx, &dbFlows, dataQuery, args...)
	if err != nil {
		return flow.FlowListResponse{}, errx.Wrap(err, "failed to list flows", errx.TypeInternal)
	}

	flows := make([]flow.Flow, 0, len(dbFlows))
	for i := range dbFlows {
		f, err := toDomainFlow(&dbFlows[i])
		if err != nil {
			return flow.FlowListResponse{}, errx.Wrap(err, "failed to convert flow", errx.TypeInternal)
		}
		flows = append(flows, *f)
	}

	return storex.NewPaginated(flows, total, req.Page, req.PageSize), nil
}

// ============================================================================
// Graph writes
// ============================================================================

func (r *PostgresFlowRepository) ReplaceNodes(ctx context.Context, flowID kernel.FlowID, nodes []flow.Node) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if err := r.replaceNodesTx(ctx, tx, flowID, nodes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit node replacement", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresFlowRepository) ReplaceEdges(ctx context.Context, flowID kernel.FlowID, edges []flow.Edge) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if err := r.replaceEdgesTx(ctx, tx, flowID, edges); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit edge replacement", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresFlowRepository) ReplaceTriggers(ctx context.Context, flowID kernel.FlowID, triggers []flow.Trigger) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if err := r.replaceTriggersTx(ctx, tx, flowID, triggers); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit trigger replacement", errx.TypeInternal)
	}
	return nil
}

// SaveGraph persiste flow, nodos, aristas y triggers en una sola transacción.
// Un guardado del builder reemplaza el grafo completo; nunca parcial.
func (r *PostgresFlowRepository) SaveGraph(ctx context.Context, f flow.Flow, nodes []flow.Node, edges []flow.Edge, triggers []flow.Trigger) error {
	dbF, err := toDBFlow(f)
	if err != nil {
		return errx.Wrap(err, "failed to convert flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	upsertQuery := `
		INSERT INTO flows (
			id, name, status, brand_id, account_id, is_pro, transform,
			created_at, updated_at
		) VALUES (
			:id, :name, :status, :brand_id, :account_id, :is_pro, :transform,
			:created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			is_pro = EXCLUDED.is_pro,
			transform = EXCLUDED.transform,
			updated_at = EXCLUDED.updated_at`

	if _, err := tx.NamedExecContext(ctx, upsertQuery, dbF); err != nil {
		return errx.Wrap(err, "failed to upsert flow", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}

	if err := r.replaceNodesTx(ctx, tx, f.ID, nodes); err != nil {
		return err
	}
	if err := r.replaceEdgesTx(ctx, tx, f.ID, edges); err != nil {
		return err
	}
	if err := r.replaceTriggersTx(ctx, tx, f.ID, triggers); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit flow graph", errx.TypeInternal).
			WithDetail("flow_id", f.ID.String())
	}
	return nil
}

func (r *PostgresFlowRepository) replaceNodesTx(ctx context.Context, tx *sqlx.Tx, flowID kernel.FlowID, nodes []flow.Node) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_nodes WHERE flow_id = $1`, flowID.String()); err != nil {
		return errx.Wrap(err, "failed to delete flow nodes", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	query := `
		INSERT INTO flow_nodes (
			flow_id, node_id, node_type, flow_node_type, node_data, position
		) VALUES (
			:flow_id, :node_id, :node_type, :flow_node_type, :node_data, :position
		)`

	for i := range nodes {
		nodes[i].FlowID = flowID
		nodes[i].Position = i

		dbN, err := toDBFlowNode(nodes[i])
		if err != nil {
			return errx.Wrap(err, "failed to convert flow node", errx.TypeInternal).
				WithDetail("node_id", nodes[i].NodeID.String())
		}

		if _, err := tx.NamedExecContext(ctx, query, dbN); err != nil {
			return errx.Wrap(err, "failed to insert flow node", errx.TypeInternal).
				WithDetail("flow_id", flowID.String()).
				WithDetail("node_id", nodes[i].NodeID.String())
		}
	}
	return nil
}

func (r *PostgresFlowRepository) replaceEdgesTx(ctx context.Context, tx *sqlx.Tx, flowID kernel.FlowID, edges []flow.Edge) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_edges WHERE flow_id = $1`, flowID.String()); err != nil {
		return errx.Wrap(err, "failed to delete flow edges", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	query := `
		INSERT INTO flow_edges (
			flow_id, edge_id, source_node_id, target_node_id, position
		) VALUES (
			:flow_id, :edge_id, :source_node_id, :target_node_id, :position
		)`

	for i := range edges {
		dbE := dbFlowEdge{
			FlowID:       flowID.String(),
			EdgeID:       edges[i].EdgeID.String(),
			SourceNodeID: edges[i].SourceNodeID,
			TargetNodeID: edges[i].TargetNodeID,
			Position:     i,
		}

		if _, err := tx.NamedExecContext(ctx, query, dbE); err != nil {
			return errx.Wrap(err, "failed to insert flow edge", errx.TypeInternal).
				WithDetail("flow_id", flowID.String()).
				WithDetail("edge_id", edges[i].EdgeID.String())
		}
	}
	return nil
}

func (r *PostgresFlowRepository) replaceTriggersTx(ctx context.Context, tx *sqlx.Tx, flowID kernel.FlowID, triggers []flow.Trigger) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_triggers WHERE flow_id = $1`, flowID.String()); err != nil {
		return errx.Wrap(err, "failed to delete flow triggers", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	query := `
		INSERT INTO flow_triggers (
			id, flow_id, node_id, trigger_type, trigger_values, position
		) VALUES (
			:id, :flow_id, :node_id, :trigger_type, :trigger_values, :position
		)`

	for i := range triggers {
		triggers[i].FlowID = flowID
		triggers[i].Position = i

		dbT, err := toDBFlowTrigger(triggers[i])
		if err != nil {
			return errx.Wrap(err, "failed to convert flow trigger", errx.TypeInternal).
				WithDetail("trigger_id", triggers[i].ID.String())
		}

		if _, err := tx.NamedExecContext(ctx, query, dbT); err != nil {
			return errx.Wrap(err, "failed to insert flow trigger", errx.TypeInternal).
				WithDetail("flow_id", flowID.String()).
				WithDetail("trigger_id", triggers[i].ID.String())
		}
	}
	return nil
}

// ============================================================================
// Graph reads
// ============================================================================

func (r *PostgresFlowRepository) FindNodes(ctx context.Context, flowID kernel.FlowID) ([]flow.Node, error) {
	query := `
		SELECT flow_id, node_id, node_type, COALESCE(flow_node_type, '') AS flow_node_type, node_data, position
		FROM flow_nodes
		WHERE flow_id = $1
		ORDER BY position ASC`

	var dbNodes []dbFlowNode
	err := r.db.SelectContext(ctx, &dbNodes, query, flowID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find flow nodes", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	nodes := make([]flow.Node, 0, len(dbNodes))
	for i := range dbNodes {
		n, err := toDomainFlowNode(&dbNodes[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert flow node", errx.TypeInternal)
		}
		nodes = append(nodes, *n)
	}

	return nodes, nil
}

func (r *PostgresFlowRepository) FindNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.Node, error) {
	query := `
		SELECT flow_id, node_id, node_type, COALESCE(flow_node_type, '') AS flow_node_type, node_data, position
		FROM flow_nodes
		WHERE flow_id = $1 AND node_id = $2`

	var dbN dbFlowNode
	err := r.db.GetContext(ctx, &dbN, query, flowID.String(), nodeID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrNodeNotFound().
				WithDetail("flow_id", flowID.String()).
				WithDetail("node_id", nodeID.String())
		}
		return nil, errx.Wrap(err, "failed to find flow node", errx.TypeInternal).
			WithDetail("flow_id", flowID.String()).
			WithDetail("node_id", nodeID.String())
	}

	return toDomainFlowNode(&dbN)
}

func (r *PostgresFlowRepository) FindEdges(ctx context.Context, flowID kernel.FlowID) ([]flow.Edge, error) {
	query := `
		SELECT flow_id, edge_id, source_node_id, target_node_id, position
		FROM flow_edges
		WHERE flow_id = $1
		ORDER BY position ASC`

	var dbEdges []dbFlowEdge
	err := r.db.SelectContext(ctx, &dbEdges, query, flowID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find flow edges", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	edges := make([]flow.Edge, 0, len(dbEdges))
	for i := range dbEdges {
		edges = append(edges, toDomainFlowEdge(&dbEdges[i]))
	}

	return edges, nil
}

func (r *PostgresFlowRepository) FindTriggers(ctx context.Context, flowID kernel.FlowID) ([]flow.Trigger, error) {
	query := `
		SELECT id, flow_id, node_id, trigger_type, trigger_values, position
		FROM flow_triggers
		WHERE flow_id = $1
		ORDER BY position ASC`

	var dbTriggers []dbFlowTrigger
	err := r.db.SelectContext(ctx, &dbTriggers, query, flowID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find flow triggers", errx.TypeInternal).
			WithDetail("flow_id", flowID.String())
	}

	triggers := make([]flow.Trigger, 0, len(dbTriggers))
	for i := range dbTriggers {
		t, err := toDomainFlowTrigger(&dbTriggers[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert flow trigger", errx.TypeInternal)
		}
		triggers = append(triggers, *t)
	}

	return triggers, nil
}

// FindTriggersByBrand devuelve los triggers de todos los flujos de la marca.
// El orden replica el de evaluación: flujos más viejos primero y dentro de
// cada flujo el orden guardado.
func (r *PostgresFlowRepository) FindTriggersByBrand(ctx context.Context, brandID int64) ([]flow.Trigger, error) {
	query := `
		SELECT t.id, t.flow_id, t.node_id, t.trigger_type, t.trigger_values, t.position
		FROM flow_triggers t
		JOIN flows f ON f.id = t.flow_id
		WHERE f.brand_id = $1
		ORDER BY f.created_at ASC, t.position ASC`

	var dbTriggers []dbFlowTrigger
	err := r.db.SelectContext(ctx, &dbTriggers, query, brandID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find triggers by brand", errx.TypeInternal).
			WithDetail("brand_id", fmt.Sprintf("%d", brandID))
	}

	triggers := make([]flow.Trigger, 0, len(dbTriggers))
	for i := range dbTriggers {
		t, err := toDomainFlowTrigger(&dbTriggers[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert flow trigger", errx.TypeInternal)
		}
		triggers = append(triggers, *t)
	}

	return triggers, nil
}
