package engine

import (
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Webhook DTOs
// ============================================================================

// WebhookRequest es el payload crudo que los servicios de canal publican en
// el intake. Es channel-agnostic; message_body guarda el cuerpo original.
type WebhookRequest struct {
	Sender               string         `json:"sender"`
	BrandID              int64          `json:"brand_id"`
	AccountID            int64          `json:"user_id"`
	ChannelIdentifier    string         `json:"channel_identifier,omitempty"`
	ChannelPhoneNumberID string         `json:"channel_phone_number_id,omitempty"`
	MessageType          string         `json:"message_type"`
	MessageBody          map[string]any `json:"message_body"`
	Channel              string         `json:"channel"`
}

// ChannelAccountID normaliza el identificador de la cuenta del canal:
// channel_identifier manda y channel_phone_number_id queda de respaldo para
// los webhooks viejos de WhatsApp que solo traían el phone_number_id.
func (r *WebhookRequest) ChannelAccountID() string {
	if r.ChannelIdentifier != "" {
		return r.ChannelIdentifier
	}
	return r.ChannelPhoneNumberID
}

func (r *WebhookRequest) Validate() error {
	if strings.TrimSpace(r.Sender) == "" {
		return ErrMissingSender()
	}
	if r.BrandID <= 0 {
		return ErrInvalidWebhookPayload().WithDetail("field", "brand_id")
	}
	if strings.TrimSpace(r.Channel) == "" {
		return ErrInvalidWebhookPayload().WithDetail("field", "channel")
	}
	if strings.TrimSpace(r.MessageType) == "" {
		return ErrInvalidWebhookPayload().WithDetail("field", "message_type")
	}
	return nil
}

// Webhook processing statuses devueltos al servicio de canal
const (
	ResponseStatusSuccess      = "success"
	ResponseStatusError        = "error"
	ResponseStatusNoAutomation = "no_automation"
)

// WebhookResponse resultado del procesamiento de un webhook
type WebhookResponse struct {
	Status              string           `json:"status"`
	Message             string           `json:"message"`
	AutomationTriggered bool             `json:"automation_triggered"`
	FlowID              *kernel.FlowID   `json:"flow_id,omitempty"`
	CurrentNodeID       *kernel.NodeID   `json:"current_node_id,omitempty"`
	ErrorDetails        string           `json:"error_details,omitempty"`
	WebhookID           kernel.WebhookID `json:"webhook_id,omitempty"`
}

// Metadata identifica marca, cuenta y canal del mensaje en curso. Viaja con
// cada operación del motor disparada por un webhook.
type Metadata struct {
	BrandID          int64  `json:"brand_id"`
	AccountID        int64  `json:"user_id"`
	Channel          string `json:"channel"`
	ChannelAccountID string `json:"channel_identifier"`
}

// MetadataFrom builds the per-message metadata from a webhook request. The
// channel account id can be overridden with the one already stored for the
// user, which wins over whatever the webhook carried.
func MetadataFrom(req *WebhookRequest, channelAccountID string) Metadata {
	if channelAccountID == "" {
		channelAccountID = req.ChannelAccountID()
	}
	return Metadata{
		BrandID:          req.BrandID,
		AccountID:        req.AccountID,
		Channel:          strings.ToLower(strings.TrimSpace(req.Channel)),
		ChannelAccountID: channelAccountID,
	}
}

// ============================================================================
// Node Process DTOs (flow engine -> channel services)
// ============================================================================

// ProcessNodeRequest es lo que el motor envía al servicio del canal para que
// ejecute un nodo externo (enviar mensaje, pregunta, botones).
type ProcessNodeRequest struct {
	FlowID        kernel.FlowID  `json:"flow_id"`
	CurrentNodeID string         `json:"current_node_id"`
	NextNodeID    string         `json:"next_node_id"`
	NextNodeData  map[string]any `json:"next_node_data"`

	UserIdentifier string `json:"user_identifier"`
	BrandID        int64  `json:"brand_id"`
	AccountID      int64  `json:"user_id"`

	Channel string `json:"channel"`

	FallbackMessage   *string        `json:"fallback_message,omitempty"`
	IsValidationError bool           `json:"is_validation_error"`
	UserState         map[string]any `json:"user_state,omitempty"`
}

// Node processing statuses que devuelven los servicios de canal
const (
	ProcessStatusSuccess         = "success"
	ProcessStatusError           = "error"
	ProcessStatusValidationExit  = "validation_exit"
	ProcessStatusValidationRetry = "validation_retry"
)

// ProcessNodeResponse respuesta del servicio de canal tras ejecutar un nodo
type ProcessNodeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	FlowID     *kernel.FlowID `json:"flow_id,omitempty"`
	NextNodeID *string        `json:"next_node_id,omitempty"`
	NodeType   *string        `json:"node_type,omitempty"`

	AutomationExited bool `json:"automation_exited"`

	SentMessageID   *string `json:"sent_message_id,omitempty"`
	ValidationCount *int    `json:"validation_count,omitempty"`
}

// IsSuccess treats anything but an explicit error as a processed node.
func (r *ProcessNodeResponse) IsSuccess() bool {
	return r.Status != ProcessStatusError
}

// ============================================================================
// List DTOs
// ============================================================================

type UserStateListRequest struct {
	storex.PaginationOptions
	BrandID        int64   `json:"brand_id" validate:"required"`
	Channel        *string `json:"channel,omitempty"`
	InAutomation   *bool   `json:"is_in_automation,omitempty"`
	UserIdentifier *string `json:"user_identifier,omitempty"`
}

func (r UserStateListRequest) GetOffset() int {
	return (r.Page - 1) * r.PageSize
}

type UserStateListResponse = storex.Paginated[UserState]

type WebhookMessageListRequest struct {
	storex.PaginationOptions
	BrandID int64          `json:"brand_id" validate:"required"`
	Status  *WebhookStatus `json:"status,omitempty"`
	Sender  *string        `json:"sender,omitempty"`
}

func (r WebhookMessageListRequest) GetOffset() int {
	return (r.Page - 1) * r.PageSize
}

type WebhookMessageListResponse = storex.Paginated[WebhookMessage]

type TransactionListRequest struct {
	storex.PaginationOptions
	BrandID        int64          `json:"brand_id" validate:"required"`
	UserIdentifier *string        `json:"user_identifier,omitempty"`
	FlowID         *kernel.FlowID `json:"flow_id,omitempty"`
}

func (r TransactionListRequest) GetOffset() int {
	return (r.Page - 1) * r.PageSize
}

type TransactionListResponse = storex.Paginated[UserTransaction]

// ============================================================================
// Schedule DTOs
// ============================================================================

// CreateScheduleRequest cuerpo para programar el disparo de un flujo
type CreateScheduleRequest struct {
	FlowID            kernel.FlowID `json:"flow_id" validate:"required"`
	ScheduleType      ScheduleType  `json:"schedule_type" validate:"required"`
	CronExpression    *string       `json:"cron_expression,omitempty"`
	IntervalSeconds   *int          `json:"interval_seconds,omitempty"`
	ScheduledAt       *time.Time    `json:"scheduled_at,omitempty"`
	Channel           string        `json:"channel" validate:"required"`
	ChannelAccountID  string        `json:"channel_account_id"`
	TargetIdentifiers []string      `json:"target_identifiers" validate:"required,min=1"`
	Timezone          string        `json:"timezone,omitempty"`
}
