package engine

import (
	"context"
	"time"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// UserStateRepository persistencia del estado conversacional
type UserStateRepository interface {
	// CRUD básico
	Save(ctx context.Context, state UserState) error
	FindByID(ctx context.Context, id kernel.UserStateID) (*UserState, error)
	FindByIdentity(ctx context.Context, userIdentifier string, brandID int64) (*UserState, error)

	// Automation state. Al salir de la automatización current_flow_id pasa a
	// last_flow_id antes de limpiarse.
	UpdateAutomationState(ctx context.Context, id kernel.UserStateID, inAutomation bool, flowID *kernel.FlowID, nodeID *kernel.NodeID) error

	// Delay parking
	SetDelayNodeData(ctx context.Context, id kernel.UserStateID, data map[string]any) error
	ClearDelayNodeData(ctx context.Context, id kernel.UserStateID) error

	// Validation tracking. RecordValidationFailure devuelve el contador ya
	// incrementado.
	RecordValidationFailure(ctx context.Context, id kernel.UserStateID, message string) (int, error)
	ResetValidation(ctx context.Context, id kernel.UserStateID) error

	// List con paginación
	List(ctx context.Context, req UserStateListRequest) (UserStateListResponse, error)
}

// FlowUserContextRepository variables capturadas por usuario y flujo
type FlowUserContextRepository interface {
	UpsertVariable(ctx context.Context, fuc FlowUserContext) error
	FindAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) ([]FlowUserContext, error)
	DeleteAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) error
}

// WebhookMessageRepository auditoría de webhooks entrantes
type WebhookMessageRepository interface {
	Save(ctx context.Context, msg WebhookMessage) error
	UpdateStatus(ctx context.Context, id kernel.WebhookID, status WebhookStatus, detail string) error
	FindByID(ctx context.Context, id kernel.WebhookID) (*WebhookMessage, error)

	// List con paginación
	List(ctx context.Context, req WebhookMessageListRequest) (WebhookMessageListResponse, error)
}

// DelayRepository temporizadores persistidos
type DelayRepository interface {
	Create(ctx context.Context, delay Delay) error
	FindByID(ctx context.Context, id kernel.DelayID) (*Delay, error)

	// FindDue devuelve delays no procesados con delay_completes_at <= now
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Delay, error)

	// FindActive busca el delay pendiente de un usuario en un nodo concreto
	FindActive(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID, nodeID kernel.NodeID) (*Delay, error)

	MarkProcessed(ctx context.Context, id kernel.DelayID) error
}

// TransactionRepository bitácora append-only del recorrido por nodos
type TransactionRepository interface {
	Save(ctx context.Context, tx UserTransaction) error

	// List con paginación
	List(ctx context.Context, req TransactionListRequest) (TransactionListResponse, error)
}

// APIKeyRepository credenciales de intake
type APIKeyRepository interface {
	Save(ctx context.Context, key APIKey) error
	FindByID(ctx context.Context, id kernel.APIKeyID) (*APIKey, error)
	FindActiveByBrand(ctx context.Context, brandID int64) ([]*APIKey, error)
	Deactivate(ctx context.Context, id kernel.APIKeyID) error
	TouchLastUsed(ctx context.Context, id kernel.APIKeyID) error
}

// FlowScheduleRepository disparos programados de flujos
type FlowScheduleRepository interface {
	Create(ctx context.Context, s FlowSchedule) error
	FindByID(ctx context.Context, id kernel.ScheduleID) (*FlowSchedule, error)
	FindByFlow(ctx context.Context, flowID kernel.FlowID) ([]*FlowSchedule, error)

	// FindDue devuelve schedules activos con next_run_at <= now
	FindDue(ctx context.Context, now time.Time) ([]*FlowSchedule, error)

	Update(ctx context.Context, s FlowSchedule) error
	Delete(ctx context.Context, id kernel.ScheduleID) error
}

// ============================================================================
// Coordination Interfaces
// ============================================================================

// IdentityLock serializa el procesamiento por identidad de usuario. Acquire
// bloquea hasta obtener el lock o agotar la espera configurada; devuelve un
// token que Release exige para no soltar un lock ajeno.
type IdentityLock interface {
	Acquire(ctx context.Context, key string) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// WebhookProcessor procesa un webhook ya construido. Lo implementa el intake
// y lo consumen los workers que sintetizan webhooks internos (delays y
// triggers programados).
type WebhookProcessor interface {
	Process(ctx context.Context, req WebhookRequest) *WebhookResponse
}

// ============================================================================
// Outbound Client Interfaces
// ============================================================================

// NodeProcessClient despacha nodos externos al servicio del canal
type NodeProcessClient interface {
	Dispatch(ctx context.Context, channel string, req ProcessNodeRequest) (*ProcessNodeResponse, error)
}

// LeadResolver resuelve o crea el lead de un usuario final en el CRM.
// Implementations devuelven cadena vacía sin error cuando el CRM no está
// configurado o la identidad no es rastreable (ni teléfono ni email).
type LeadResolver interface {
	Resolve(ctx context.Context, brandID, accountID int64, channel, identifier string, detail *UserDetail) (string, error)
}
