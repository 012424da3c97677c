package engine

import (
	"strings"
	"time"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// User State Entity
// ============================================================================

// UserState es el estado conversacional de un usuario final dentro de una
// marca: dónde está en la automatización, sus fallos de validación y el nodo
// de delay en el que quedó estacionado, si aplica.
type UserState struct {
	ID               kernel.UserStateID `db:"id" json:"id"`
	UserIdentifier   string             `db:"user_identifier" json:"user_identifier"`
	BrandID          int64              `db:"brand_id" json:"brand_id"`
	AccountID        *int64             `db:"account_id" json:"user_id,omitempty"`
	Channel          string             `db:"channel" json:"channel"`
	ChannelAccountID string             `db:"channel_account_id" json:"channel_account_id"`
	UserDetail       *UserDetail        `db:"user_detail" json:"user_detail,omitempty"`
	LeadID           string             `db:"lead_id" json:"lead_id,omitempty"`

	IsInAutomation bool           `db:"is_in_automation" json:"is_in_automation"`
	CurrentFlowID  *kernel.FlowID `db:"current_flow_id" json:"current_flow_id,omitempty"`
	LastFlowID     *kernel.FlowID `db:"last_flow_id" json:"last_flow_id,omitempty"`
	CurrentNodeID  *kernel.NodeID `db:"current_node_id" json:"current_node_id,omitempty"`
	DelayNodeData  map[string]any `db:"delay_node_data" json:"delay_node_data,omitempty"`

	ValidationFailed         bool   `db:"validation_failed" json:"validation_failed"`
	ValidationFailureCount   int    `db:"validation_failure_count" json:"validation_failure_count"`
	ValidationFailureMessage string `db:"validation_failure_message" json:"validation_failure_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsParkedOnDelay reports whether the user sits on a delay node waiting for
// the timer to fire.
func (u *UserState) IsParkedOnDelay() bool {
	return u.IsInAutomation && len(u.DelayNodeData) > 0
}

// ============================================================================
// User Detail
// ============================================================================

// UserDetail identificadores del usuario final en cada canal
type UserDetail struct {
	PhoneNumber      string `json:"phone_number,omitempty"`
	Email            string `json:"email,omitempty"`
	InstagramUserID  string `json:"instagram_user_id,omitempty"`
	FacebookUserID   string `json:"facebook_user_id,omitempty"`
	TelegramUserID   string `json:"telegram_user_id,omitempty"`
	CustomIdentifier string `json:"custom_identifier,omitempty"`
}

// IdentifierFor returns the identifier this detail holds for a channel.
// Unknown channels fall back to custom, then phone, then email.
func (d *UserDetail) IdentifierFor(channel string) string {
	if d == nil {
		return ""
	}
	switch strings.ToLower(channel) {
	case "whatsapp", "sms":
		return d.PhoneNumber
	case "email", "gmail":
		return d.Email
	case "instagram":
		return d.InstagramUserID
	case "facebook":
		return d.FacebookUserID
	case "telegram":
		return d.TelegramUserID
	}
	if d.CustomIdentifier != "" {
		return d.CustomIdentifier
	}
	if d.PhoneNumber != "" {
		return d.PhoneNumber
	}
	return d.Email
}

// SetIdentifierFor stores an identifier under the slot the channel uses.
func (d *UserDetail) SetIdentifierFor(channel, identifier string) {
	switch strings.ToLower(channel) {
	case "whatsapp", "sms":
		d.PhoneNumber = identifier
	case "email", "gmail":
		d.Email = identifier
	case "instagram":
		d.InstagramUserID = identifier
	case "facebook":
		d.FacebookUserID = identifier
	case "telegram":
		d.TelegramUserID = identifier
	default:
		d.CustomIdentifier = identifier
	}
}

// ============================================================================
// Webhook Message Entity (audit trail)
// ============================================================================

// WebhookStatus estado de procesamiento de un webhook recibido
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusError     WebhookStatus = "error"
)

// WebhookMessage es el registro de auditoría de cada mensaje entrante
type WebhookMessage struct {
	ID               kernel.WebhookID `db:"id" json:"id"`
	Sender           string           `db:"sender" json:"sender"`
	BrandID          int64            `db:"brand_id" json:"brand_id"`
	AccountID        *int64           `db:"account_id" json:"user_id,omitempty"`
	Channel          string           `db:"channel" json:"channel"`
	ChannelAccountID string           `db:"channel_account_id" json:"channel_account_id"`
	MessageType      string           `db:"message_type" json:"message_type"`
	MessageBody      map[string]any   `db:"message_body" json:"message_body"`
	Status           WebhookStatus    `db:"status" json:"status"`
	Detail           string           `db:"detail" json:"detail,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// Delay Entity
// ============================================================================

// Delay es un temporizador persistido pendiente de disparo. Processed pasa a
// true al dispararse o al ser interrumpido; nunca se dispara dos veces.
type Delay struct {
	ID               kernel.DelayID `db:"id" json:"id"`
	UserIdentifier   string         `db:"user_identifier" json:"user_identifier"`
	BrandID          int64          `db:"brand_id" json:"brand_id"`
	FlowID           kernel.FlowID  `db:"flow_id" json:"flow_id"`
	DelayNodeID      kernel.NodeID  `db:"delay_node_id" json:"delay_node_id"`
	DelayNodeData    map[string]any `db:"delay_node_data" json:"delay_node_data,omitempty"`
	DelayDuration    int            `db:"delay_duration" json:"delay_duration"`
	DelayUnit        string         `db:"delay_unit" json:"delay_unit"`
	WaitTimeSeconds  int64          `db:"wait_time_seconds" json:"wait_time_seconds"`
	DelayStartedAt   time.Time      `db:"delay_started_at" json:"delay_started_at"`
	DelayCompletesAt time.Time      `db:"delay_completes_at" json:"delay_completes_at"`
	Processed        bool           `db:"processed" json:"processed"`
	Channel          string         `db:"channel" json:"channel"`
	ChannelAccountID string         `db:"channel_account_id" json:"channel_account_id"`
}

// ============================================================================
// User Transaction Entity (step log)
// ============================================================================

// TransactionStatus resultado del procesamiento de un nodo
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusError   TransactionStatus = "error"
)

// UserTransaction es una entrada append-only del recorrido de un usuario por
// los nodos de un flujo
type UserTransaction struct {
	ID               kernel.TransactionID `db:"id" json:"id"`
	UserIdentifier   string               `db:"user_identifier" json:"user_identifier"`
	BrandID          int64                `db:"brand_id" json:"brand_id"`
	FlowID           kernel.FlowID        `db:"flow_id" json:"flow_id"`
	NodeID           kernel.NodeID        `db:"node_id" json:"node_id"`
	NodeType         string               `db:"node_type" json:"node_type"`
	Channel          string               `db:"channel" json:"channel"`
	ChannelAccountID string               `db:"channel_account_id" json:"channel_identifier_id"`
	ProcessedStatus  TransactionStatus    `db:"processed_status" json:"processed_status"`
	ProcessedValue   any                  `db:"processed_value" json:"processed_value,omitempty"`
	NodeData         map[string]any       `db:"node_data" json:"node_data,omitempty"`
	UserDetail       map[string]any       `db:"user_detail" json:"user_detail,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
}

// ============================================================================
// Flow User Context Entity (variables)
// ============================================================================

// FlowUserContext es una variable capturada durante un flujo para un usuario
type FlowUserContext struct {
	UserIdentifier string        `db:"user_identifier" json:"user_phone_number"`
	BrandID        int64         `db:"brand_id" json:"brand_id"`
	FlowID         kernel.FlowID `db:"flow_id" json:"flow_id"`
	VariableName   string        `db:"variable_name" json:"variable_name"`
	VariableValue  string        `db:"variable_value" json:"variable_value"`
	NodeID         kernel.NodeID `db:"node_id" json:"node_id,omitempty"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// API Key Entity (webhook credentials)
// ============================================================================

// APIKey credencial de intake con secreto almacenado como hash bcrypt
type APIKey struct {
	ID         kernel.APIKeyID `db:"id" json:"id"`
	BrandID    int64           `db:"brand_id" json:"brand_id"`
	Name       string          `db:"name" json:"name"`
	KeyHash    string          `db:"key_hash" json:"-"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
}

// ============================================================================
// Message Types
// ============================================================================

// Synthetic message types injected by the engine itself, never by a channel.
const (
	MessageTypeDelayComplete    = "delay_complete"
	MessageTypeScheduledTrigger = "scheduled_trigger"
)

// IsSyntheticMessageType reports whether the type is engine-generated.
func IsSyntheticMessageType(t string) bool {
	return t == MessageTypeDelayComplete || t == MessageTypeScheduledTrigger
}
