package engineinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresTransactionRepository bitácora append-only: una fila por nodo
// procesado. Nunca se actualiza ni se borra desde el motor.
type PostgresTransactionRepository struct {
	db *sqlx.DB
}

var _ engine.TransactionRepository = (*PostgresTransactionRepository)(nil)

func NewPostgresTransactionRepository(db *sqlx.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

type dbUserTransaction struct {
	ID               string          `db:"id"`
	UserIdentifier   string          `db:"user_identifier"`
	BrandID          int64           `db:"brand_id"`
	FlowID           string          `db:"flow_id"`
	NodeID           string          `db:"node_id"`
	NodeType         string          `db:"node_type"`
	Channel          string          `db:"channel"`
	ChannelAccountID string          `db:"channel_account_id"`
	ProcessedStatus  string          `db:"processed_status"`
	ProcessedValue   json.RawMessage `db:"processed_value"`
	NodeData         json.RawMessage `db:"node_data"`
	UserDetail       json.RawMessage `db:"user_detail"`
	CreatedAt        time.Time       `db:"created_at"`
}

const transactionColumns = `
	id, user_identifier, brand_id, COALESCE(flow_id, '') AS flow_id,
	COALESCE(node_id, '') AS node_id, COALESCE(node_type, '') AS node_type,
	COALESCE(channel, '') AS channel,
	COALESCE(channel_account_id, '') AS channel_account_id,
	processed_status, processed_value, node_data, user_detail, created_at`

func toDBUserTransaction(tx engine.UserTransaction) (*dbUserTransaction, error) {
	var valueJSON json.RawMessage
	if tx.ProcessedValue != nil {
		data, err := json.Marshal(tx.ProcessedValue)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal processed value: %w", err)
		}
		valueJSON = data
	}

	var nodeDataJSON json.RawMessage
	if len(tx.NodeData) > 0 {
		data, err := json.Marshal(tx.NodeData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal node data: %w", err)
		}
		nodeDataJSON = data
	}

	var detailJSON json.RawMessage
	if len(tx.UserDetail) > 0 {
		data, err := json.Marshal(tx.UserDetail)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal user detail: %w", err)
		}
		detailJSON = data
	}

	return &dbUserTransaction{
		ID:               tx.ID.String(),
		UserIdentifier:   tx.UserIdentifier,
		BrandID:          tx.BrandID,
		FlowID:           tx.FlowID.String(),
		NodeID:           tx.NodeID.String(),
		NodeType:         tx.NodeType,
		Channel:          tx.Channel,
		ChannelAccountID: tx.ChannelAccountID,
		ProcessedStatus:  string(tx.ProcessedStatus),
		ProcessedValue:   valueJSON,
		NodeData:         nodeDataJSON,
		UserDetail:       detailJSON,
		CreatedAt:        tx.CreatedAt,
	}, nil
}

func toDomainUserTransaction(dbTx *dbUserTransaction) (*engine.UserTransaction, error) {
	var value any
	if len(dbTx.ProcessedValue) > 0 && string(dbTx.ProcessedValue) != "null" {
		if err := json.Unmarshal(dbTx.ProcessedValue, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processed value: %w", err)
		}
	}

	var nodeData map[string]any
	if len(dbTx.NodeData) > 0 && string(dbTx.NodeData) != "null" {
		if err := json.Unmarshal(dbTx.NodeData, &nodeData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node data: %w", err)
		}
	}

	var detail map[string]any
	if len(dbTx.UserDetail) > 0 && string(dbTx.UserDetail) != "null" {
		if err := json.Unmarshal(dbTx.UserDetail, &detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user detail: %w", err)
		}
	}

	return &engine.UserTransaction{
		ID:               kernel.TransactionID(dbTx.ID),
		UserIdentifier:   dbTx.UserIdentifier,
		BrandID:          dbTx.BrandID,
		FlowID:           kernel.FlowID(dbTx.FlowID),
		NodeID:           kernel.NodeID(dbTx.NodeID),
		NodeType:         dbTx.NodeType,
		Channel:          dbTx.Channel,
		ChannelAccountID: dbTx.ChannelAccountID,
		ProcessedStatus:  engine.TransactionStatus(dbTx.ProcessedStatus),
		ProcessedValue:   value,
		NodeData:         nodeData,
		UserDetail:       detail,
		CreatedAt:        dbTx.CreatedAt,
	}, nil
}

func (r *PostgresTransactionRepository) Save(ctx context.Context, tx engine.UserTransaction) error {
	dbTx, err := toDBUserTransaction(tx)
	if err != nil {
		return errx.Wrap(err, "failed to convert user transaction", errx.TypeInternal).
			WithDetail("transaction_id", tx.ID)
	}

	query := `
		INSERT INTO user_transactions (
			id, user_identifier, brand_id, flow_id, node_id, node_type,
			channel, channel_account_id, processed_status, processed_value,
			node_data, user_detail, created_at
		) VALUES (
			:id, :user_identifier, :brand_id, :flow_id, :node_id, :node_type,
			:channel, :channel_account_id, :processed_status, :processed_value,
			:node_data, :user_detail, :created_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbTx)
	if err != nil {
		return errx.Wrap(err, "failed to save user transaction", errx.TypeInternal).
			WithDetail("transaction_id", tx.ID)
	}

	return nil
}

func (r *PostgresTransactionRepository) List(ctx context.Context, req engine.TransactionListRequest) (engine.TransactionListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("brand_id = $%d", argPos))
	args = append(args, req.BrandID)
	argPos++

	if req.UserIdentifier != nil {
		conditions = append(conditions, fmt.Sprintf("user_identifier = $%d", argPos))
		args = append(args, *req.UserIdentifier)
		argPos++
	}

	if req.FlowID != nil {
		conditions = append(conditions, fmt.Sprintf("flow_id = $%d", argPos))
		args = append(args, req.FlowID.String())
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM user_transactions WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.TransactionListResponse{}, errx.Wrap(err, "failed to count user transactions", errx.TypeInternal)
	}

	// Data query
	dataQuery := fmt.Sprintf(`
		SELECT %s FROM user_transactions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		transactionColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbTxs []dbUserTransaction
	err = r.db.SelectContext(ctx, &dbTxs, dataQuery, args...)
	if err != nil {
		return engine.TransactionListResponse{}, errx.Wrap(err, "failed to list user transactions", errx.TypeInternal)
	}

	transactions := make([]engine.UserTransaction, 0, len(dbTxs))
	for i := range dbTxs {
		tx, err := toDomainUserTransaction(&dbTxs[i])
		if err != nil {
			return engine.TransactionListResponse{}, errx.Wrap(err, "failed to convert user transaction", errx.TypeInternal)
		}
		transactions = append(transactions, *tx)
	}

	return storex.NewPaginated(transactions, total, req.Page, req.PageSize), nil
}
