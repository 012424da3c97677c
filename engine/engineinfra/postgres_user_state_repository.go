package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresUserStateRepository struct {
	db *sqlx.DB
}

var _ engine.UserStateRepository = (*PostgresUserStateRepository)(nil)

func NewPostgresUserStateRepository(db *sqlx.DB) *PostgresUserStateRepository {
	return &PostgresUserStateRepository{db: db}
}

// dbUserState is an intermediate struct for database operations
type dbUserState struct {
	ID                       string          `db:"id"`
	UserIdentifier           string          `db:"user_identifier"`
	BrandID                  int64           `db:"brand_id"`
	AccountID                *int64          `db:"account_id"`
	Channel                  string          `db:"channel"`
	ChannelAccountID         string          `db:"channel_account_id"`
	UserDetail               json.RawMessage `db:"user_detail"`
	LeadID                   string          `db:"lead_id"`
	IsInAutomation           bool            `db:"is_in_automation"`
	CurrentFlowID            *string         `db:"current_flow_id"`
	LastFlowID               *string         `db:"last_flow_id"`
	CurrentNodeID            *string         `db:"current_node_id"`
	DelayNodeData            json.RawMessage `db:"delay_node_data"`
	ValidationFailed         bool            `db:"validation_failed"`
	ValidationFailureCount   int             `db:"validation_failure_count"`
	ValidationFailureMessage string          `db:"validation_failure_message"`
	CreatedAt                time.Time       `db:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at"`
}

const userStateColumns = `
	id, user_identifier, brand_id, account_id, channel,
	COALESCE(channel_account_id, '') AS channel_account_id, user_detail,
	COALESCE(lead_id, '') AS lead_id, is_in_automation,
	current_flow_id, last_flow_id, current_node_id, delay_node_data,
	validation_failed, validation_failure_count,
	COALESCE(validation_failure_message, '') AS validation_failure_message,
	created_at, updated_at`

// toDBUserState converts domain UserState to dbUserState
func toDBUserState(state engine.UserState) (*dbUserState, error) {
	var detailJSON json.RawMessage
	if state.UserDetail != nil {
		data, err := json.Marshal(state.UserDetail)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal user detail: %w", err)
		}
		detailJSON = data
	}

	var delayJSON json.RawMessage
	if len(state.DelayNodeData) > 0 {
		data, err := json.Marshal(state.DelayNodeData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal delay node data: %w", err)
		}
		delayJSON = data
	}

	var currentFlowID, lastFlowID, currentNodeID *string
	if state.CurrentFlowID != nil {
		s := state.CurrentFlowID.String()
		currentFlowID = &s
	}
	if state.LastFlowID != nil {
		s := state.LastFlowID.String()
		lastFlowID = &s
	}
	if state.CurrentNodeID != nil {
		s := state.CurrentNodeID.String()
		currentNodeID = &s
	}

	return &dbUserState{
		ID:                       state.ID.String(),
		UserIdentifier:           state.UserIdentifier,
		BrandID:                  state.BrandID,
		AccountID:                state.AccountID,
		Channel:                  state.Channel,
		ChannelAccountID:         state.ChannelAccountID,
		UserDetail:               detailJSON,
		LeadID:                   state.LeadID,
		IsInAutomation:           state.IsInAutomation,
		CurrentFlowID:            currentFlowID,
		LastFlowID:               lastFlowID,
		CurrentNodeID:            currentNodeID,
		DelayNodeData:            delayJSON,
		ValidationFailed:         state.ValidationFailed,
		ValidationFailureCount:   state.ValidationFailureCount,
		ValidationFailureMessage: state.ValidationFailureMessage,
		CreatedAt:                state.CreatedAt,
		UpdatedAt:                state.UpdatedAt,
	}, nil
}

// toDomainUserState converts dbUserState to domain UserState
func toDomainUserState(dbState *dbUserState) (*engine.UserState, error) {
	var detail *engine.UserDetail
	if len(dbState.UserDetail) > 0 && string(dbState.UserDetail) != "null" {
		detail = &engine.UserDetail{}
		if err := json.Unmarshal(dbState.UserDetail, detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user detail: %w", err)
		}
	}

	var delayData map[string]any
	if len(dbState.DelayNodeData) > 0 && string(dbState.DelayNodeData) != "null" {
		if err := json.Unmarshal(dbState.DelayNodeData, &delayData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delay node data: %w", err)
		}
	}

	var currentFlowID, lastFlowID *kernel.FlowID
	var currentNodeID *kernel.NodeID
	if dbState.CurrentFlowID != nil {
		id := kernel.FlowID(*dbState.CurrentFlowID)
		currentFlowID = &id
	}
	if dbState.LastFlowID != nil {
		id := kernel.FlowID(*dbState.LastFlowID)
		lastFlowID = &id
	}
	if dbState.CurrentNodeID != nil {
		id := kernel.NodeID(*dbState.CurrentNodeID)
		currentNodeID = &id
	}

	return &engine.UserState{
		ID:                       kernel.UserStateID(dbState.ID),
		UserIdentifier:           dbState.UserIdentifier,
		BrandID:                  dbState.BrandID,
		AccountID:                dbState.AccountID,
		Channel:                  dbState.Channel,
		ChannelAccountID:         dbState.ChannelAccountID,
		UserDetail:               detail,
		LeadID:                   dbState.LeadID,
		IsInAutomation:           dbState.IsInAutomation,
		CurrentFlowID:            currentFlowID,
		LastFlowID:               lastFlowID,
		CurrentNodeID:            currentNodeID,
		DelayNodeData:            delayData,
		ValidationFailed:         dbState.ValidationFailed,
		ValidationFailureCount:   dbState.ValidationFailureCount,
		ValidationFailureMessage: dbState.ValidationFailureMessage,
		CreatedAt:                dbState.CreatedAt,
		UpdatedAt:                dbState.UpdatedAt,
	}, nil
}

func (r *PostgresUserStateRepository) Save(ctx context.Context, state engine.UserState) error {
	exists, err := r.userStateExists(ctx, state.ID.String())
	if err != nil {
		return errx.Wrap(err, "failed to check user state existence", errx.TypeInternal)
	}

	if exists {
		return r.update(ctx, state)
	}
	return r.create(ctx, state)
}

func (r *PostgresUserStateRepository) create(ctx context.Context, state engine.UserState) error {
	dbState, err := toDBUserState(state)
	if err != nil {
		return errx.Wrap(err, "failed to convert user state", errx.TypeInternal).
			WithDetail("user_state_id", state.ID)
	}

	query := `
		INSERT INTO user_states (
			id, user_identifier, brand_id, account_id, channel, channel_account_id,
			user_detail, lead_id, is_in_automation, current_flow_id, last_flow_id,
			current_node_id, delay_node_data, validation_failed,
			validation_failure_count, validation_failure_message, created_at, updated_at
		) VALUES (
			:id, :user_identifier, :brand_id, :account_id, :channel, :channel_account_id,
			:user_detail, :lead_id, :is_in_automation, :current_flow_id, :last_flow_id,
			:current_node_id, :delay_node_data, :validation_failed,
			:validation_failure_count, :validation_failure_message, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbState)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.Wrap(err, "user state already exists for identity", errx.TypeConflict).
				WithDetail("user_identifier", state.UserIdentifier).
				WithDetail("brand_id", fmt.Sprintf("%d", state.BrandID))
		}
		return errx.Wrap(err, "failed to create user state", errx.TypeInternal).
			WithDetail("user_state_id", state.ID)
	}

	return nil
}

func (r *PostgresUserStateRepository) update(ctx context.Context, state engine.UserState) error {
	dbState, err := toDBUserState(state)
	if err != nil {
		return errx.Wrap(err, "failed to convert user state", errx.TypeInternal).
			WithDetail("user_state_id", state.ID)
	}

	query := `
		UPDATE user_states SET
			account_id = :account_id,
			channel = :channel,
			channel_account_id = :channel_account_id,
			user_detail = :user_detail,
			lead_id = :lead_id,
			is_in_automation = :is_in_automation,
			current_flow_id = :current_flow_id,
			last_flow_id = :last_flow_id,
			current_node_id = :current_node_id,
			delay_node_data = :delay_node_data,
			validation_failed = :validation_failed,
			validation_failure_count = :validation_failure_count,
			validation_failure_message = :validation_failure_message,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, dbState)
	if err != nil {
		return errx.Wrap(err, "failed to update user state", errx.TypeInternal).
			WithDetail("user_state_id", state.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrUserStateNotFound().WithDetail("user_state_id", state.ID)
	}

	return nil
}

func (r *PostgresUserStateRepository) FindByID(ctx context.Context, id kernel.UserStateID) (*engine.UserState, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_states WHERE id = $1`, userStateColumns)

	var dbState dbUserState
	err := r.db.GetContext(ctx, &dbState, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find user state by id", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	return toDomainUserState(&dbState)
}

func (r *PostgresUserStateRepository) FindByIdentity(ctx context.Context, userIdentifier string, brandID int64) (*engine.UserState, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM user_states
		WHERE user_identifier = $1 AND brand_id = $2`, userStateColumns)

	var dbState dbUserState
	err := r.db.GetContext(ctx, &dbState, query, userIdentifier, brandID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrUserStateNotFound().
				WithDetail("user_identifier", userIdentifier).
				WithDetail("brand_id", fmt.Sprintf("%d", brandID))
		}
		return nil, errx.Wrap(err, "failed to find user state by identity", errx.TypeInternal).
			WithDetail("user_identifier", userIdentifier).
			WithDetail("brand_id", fmt.Sprintf("%d", brandID))
	}

	return toDomainUserState(&dbState)
}

// UpdateAutomationState cambia el estado de automatización. Al salir, el flujo
// vigente queda registrado en last_flow_id antes de limpiar los punteros.
func (r *PostgresUserStateRepository) UpdateAutomationState(ctx context.Context, id kernel.UserStateID, inAutomation bool, flowID *kernel.FlowID, nodeID *kernel.NodeID) error {
	var flowStr, nodeStr *string
	if flowID != nil {
		s := flowID.String()
		flowStr = &s
	}
	if nodeID != nil {
		s := nodeID.String()
		nodeStr = &s
	}

	query := `
		UPDATE user_states SET
			is_in_automation = $2,
			last_flow_id = CASE WHEN NOT $2 THEN COALESCE(current_flow_id, last_flow_id) ELSE last_flow_id END,
			current_flow_id = $3,
			current_node_id = $4,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String(), inAutomation, flowStr, nodeStr)
	if err != nil {
		return errx.Wrap(err, "failed to update automation state", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
	}

	return nil
}

func (r *PostgresUserStateRepository) SetDelayNodeData(ctx context.Context, id kernel.UserStateID, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return errx.Wrap(err, "failed to marshal delay node data", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	query := `UPDATE user_states SET delay_node_data = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String(), dataJSON)
	if err != nil {
		return errx.Wrap(err, "failed to set delay node data", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
	}

	return nil
}

func (r *PostgresUserStateRepository) ClearDelayNodeData(ctx context.Context, id kernel.UserStateID) error {
	query := `UPDATE user_states SET delay_node_data = NULL, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to clear delay node data", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
	}

	return nil
}

// RecordValidationFailure incrementa el contador y devuelve el valor ya
// incrementado para que el validador decida si agotó los intentos.
func (r *PostgresUserStateRepository) RecordValidationFailure(ctx context.Context, id kernel.UserStateID, message string) (int, error) {
	query := `
		UPDATE user_states SET
			validation_failed = TRUE,
			validation_failure_count = validation_failure_count + 1,
			validation_failure_message = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING validation_failure_count`

	var count int
	err := r.db.GetContext(ctx, &count, query, id.String(), message)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
		}
		return 0, errx.Wrap(err, "failed to record validation failure", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	return count, nil
}

func (r *PostgresUserStateRepository) ResetValidation(ctx context.Context, id kernel.UserStateID) error {
	query := `
		UPDATE user_states SET
			validation_failed = FALSE,
			validation_failure_count = 0,
			validation_failure_message = '',
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to reset validation state", errx.TypeInternal).
			WithDetail("user_state_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrUserStateNotFound().WithDetail("user_state_id", string(id))
	}

	return nil
}

func (r *PostgresUserStateRepository) List(ctx context.Context, req engine.UserStateListRequest) (engine.UserStateListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("brand_id = $%d", argPos))
	args = append(args, req.BrandID)
	argPos++

	if req.Channel != nil {
		conditions = append(conditions, fmt.Sprintf("channel = $%d", argPos))
		args = append(args, *req.Channel)
		argPos++
	}

	if req.InAutomation != nil {
		conditions = append(conditions, fmt.Sprintf("is_in_automation = $%d", argPos))
		args = append(args, *req.InAutomation)
		argPos++
	}

	if req.UserIdentifier != nil {
		conditions = append(conditions, fmt.Sprintf("user_identifier = $%d", argPos))
		args = append(args, *req.UserIdentifier)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM user_states WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.UserStateListResponse{}, errx.Wrap(err, "failed to count user states", errx.TypeInternal)
	}

	// Data query
	dataQuery := fmt.Sprintf(`
		SELECT %s FROM user_states
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		userStateColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbStates []dbUserState
	err = r.db.SelectContext(ctx, &dbStates, dataQuery, args...)
	if err != nil {
		return engine.UserStateListResponse{}, errx.Wrap(err, "failed to list user states", errx.TypeInternal)
	}

	states := make([]engine.UserState, 0, len(dbStates))
	for i := range dbStates {
		state, err := toDomainUserState(&dbStates[i])
		if err != nil {
			return engine.UserStateListResponse{}, errx.Wrap(err, "failed to convert user state", errx.TypeInternal)
		}
		states = append(states, *state)
	}

	return storex.NewPaginated(states, total, req.Page, req.PageSize), nil
}

func (r *PostgresUserStateRepository) userStateExists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_states WHERE id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, id)
	if err != nil {
		return false, errx.Wrap(err, "failed to check user state existence", errx.TypeInternal)
	}

	return exists, nil
}
