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
)

// PostgresWebhookRepository guarda la auditoría de webhooks. Cada mensaje
// entra como 'pending' y termina en 'processed' o 'error'.
type PostgresWebhookRepository struct {
	db *sqlx.DB
}

var _ engine.WebhookMessageRepository = (*PostgresWebhookRepository)(nil)

func NewPostgresWebhookRepository(db *sqlx.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

type dbWebhookMessage struct {
	ID               string          `db:"id"`
	Sender           string          `db:"sender"`
	BrandID          int64           `db:"brand_id"`
	AccountID        *int64          `db:"account_id"`
	Channel          string          `db:"channel"`
	ChannelAccountID string          `db:"channel_account_id"`
	MessageType      string          `db:"message_type"`
	MessageBody      json.RawMessage `db:"message_body"`
	Status           string          `db:"status"`
	Detail           string          `db:"detail"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

const webhookColumns = `
	id, COALESCE(sender, '') AS sender, COALESCE(brand_id, 0) AS brand_id,
	account_id, COALESCE(channel, '') AS channel,
	COALESCE(channel_account_id, '') AS channel_account_id,
	COALESCE(message_type, '') AS message_type, message_body, status,
	COALESCE(detail, '') AS detail, created_at, updated_at`

func toDBWebhookMessage(msg engine.WebhookMessage) (*dbWebhookMessage, error) {
	bodyJSON := []byte("{}")
	if msg.MessageBody != nil {
		data, err := json.Marshal(msg.MessageBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message body: %w", err)
		}
		bodyJSON = data
	}

	return &dbWebhookMessage{
		ID:               msg.ID.String(),
		Sender:           msg.Sender,
		BrandID:          msg.BrandID,
		AccountID:        msg.AccountID,
		Channel:          msg.Channel,
		ChannelAccountID: msg.ChannelAccountID,
		MessageType:      msg.MessageType,
		MessageBody:      bodyJSON,
		Status:           string(msg.Status),
		Detail:           msg.Detail,
		CreatedAt:        msg.CreatedAt,
		UpdatedAt:        msg.UpdatedAt,
	}, nil
}

func toDomainWebhookMessage(dbMsg *dbWebhookMessage) (*engine.WebhookMessage, error) {
	var body map[string]any
	if len(dbMsg.MessageBody) > 0 && string(dbMsg.MessageBody) != "null" {
		if err := json.Unmarshal(dbMsg.MessageBody, &body); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message body: %w", err)
		}
	}

	return &engine.WebhookMessage{
		ID:               kernel.WebhookID(dbMsg.ID),
		Sender:           dbMsg.Sender,
		BrandID:          dbMsg.BrandID,
		AccountID:        dbMsg.AccountID,
		Channel:          dbMsg.Channel,
		ChannelAccountID: dbMsg.ChannelAccountID,
		MessageType:      dbMsg.MessageType,
		MessageBody:      body,
		Status:           engine.WebhookStatus(dbMsg.Status),
		Detail:           dbMsg.Detail,
		CreatedAt:        dbMsg.CreatedAt,
		UpdatedAt:        dbMsg.UpdatedAt,
	}, nil
}

func (r *PostgresWebhookRepository) Save(ctx context.Context, msg engine.WebhookMessage) error {
	dbMsg, err := toDBWebhookMessage(msg)
	if err != nil {
		return errx.Wrap(err, "failed to convert webhook message", errx.TypeInternal).
			WithDetail("webhook_id", msg.ID)
	}

	query := `
		INSERT INTO webhook_messages (
			id, sender, brand_id, account_id, channel, channel_account_id,
			message_type, message_body, status, detail, created_at, updated_at
		) VALUES (
			:id, :sender, :brand_id, :account_id, :channel, :channel_account_id,
			:message_type, :message_body, :status, :detail, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbMsg)
	if err != nil {
		return errx.Wrap(err, "failed to save webhook message", errx.TypeInternal).
			WithDetail("webhook_id", msg.ID)
	}

	return nil
}

func (r *PostgresWebhookRepository) UpdateStatus(ctx context.Context, id kernel.WebhookID, status engine.WebhookStatus, detail string) error {
	query := `
		UPDATE webhook_messages
		SET status = $2, detail = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String(), string(status), detail)
	if err != nil {
		return errx.Wrap(err, "failed to update webhook status", errx.TypeInternal).
			WithDetail("webhook_id", string(id)).
			WithDetail("status", string(status))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWebhookNotFound().WithDetail("webhook_id", string(id))
	}

	return nil
}

func (r *PostgresWebhookRepository) FindByID(ctx context.Context, id kernel.WebhookID) (*engine.WebhookMessage, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_messages WHERE id = $1`, webhookColumns)

	var dbMsg dbWebhookMessage
	err := r.db.GetContext(ctx, &dbMsg, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrWebhookNotFound().WithDetail("webhook_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find webhook message by id", errx.TypeInternal).
			WithDetail("webhook_id", string(id))
	}

	return toDomainWebhookMessage(&dbMsg)
}

func (r *PostgresWebhookRepository) List(ctx context.Context, req engine.WebhookMessageListRequest) (engine.WebhookMessageListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("brand_id = $%d", argPos))
	args = append(args, req.BrandID)
	argPos++

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}

	if req.Sender != nil {
		conditions = append(conditions, fmt.Sprintf("sender = $%d", argPos))
		args = append(args, *req.Sender)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM webhook_messages WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.WebhookMessageListResponse{}, errx.Wrap(err, "failed to count webhook messages", errx.TypeInternal)
	}

	// Data query
	dataQuery := fmt.Sprintf(`
		SELECT %s FROM webhook_messages
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		webhookColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbMsgs []dbWebhookMessage
	err = r.db.SelectContext(ctx, &dbMsgs, dataQuery, args...)
	if err != nil {
		return engine.WebhookMessageListResponse{}, errx.Wrap(err, "failed to list webhook messages", errx.TypeInternal)
	}

	messages := make([]engine.WebhookMessage, 0, len(dbMsgs))
	for i := range dbMsgs {
		msg, err := toDomainWebhookMessage(&dbMsgs[i])
		if err != nil {
			return engine.WebhookMessageListResponse{}, errx.Wrap(err, "failed to convert webhook message", errx.TypeInternal)
		}
		messages = append(messages, *msg)
	}

	return storex.NewPaginated(messages, total, req.Page, req.PageSize), nil
}
