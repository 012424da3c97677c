package enginesrv

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/agentcord/agentflow/pkg/metrics"
)

// IntakeService recibe los webhooks crudos de los servicios de canal y los
// lleva hasta el orquestador: auditoría, archivo del payload, normalización
// y serialización por identidad. Es la única implementación de
// engine.WebhookProcessor; los workers internos sintetizan webhooks y los
// pasan por acá para que sigan el mismo camino que un mensaje real.
type IntakeService struct {
	audits       engine.WebhookMessageRepository
	archive      channels.MessageArchiver
	adapter      *channels.MessageAdapter
	locks        engine.IdentityLock
	orchestrator *Orchestrator
}

var _ engine.WebhookProcessor = (*IntakeService)(nil)

func NewIntakeService(
	audits engine.WebhookMessageRepository,
	archive channels.MessageArchiver,
	adapter *channels.MessageAdapter,
	locks engine.IdentityLock,
	orchestrator *Orchestrator,
) *IntakeService {
	return &IntakeService{
		audits,
		archive,
		adapter,
		locks,
		orchestrator,
	}
}

// Process es el entry point de cada webhook
func (s *IntakeService) Process(ctx context.Context, req engine.WebhookRequest) (resp *engine.WebhookResponse) {
	start := time.Now()
	defer func() {
		metrics.IntakeDuration.Observe(time.Since(start).Seconds())
		metrics.MessagesProcessed.WithLabelValues(req.Channel, resp.Status).Inc()
	}()

	// 1. Validar el request antes de tocar la base
	if err := req.Validate(); err != nil {
		log.Printf("❌ [INTAKE] Invalid webhook request: %v", err)
		return errorResponse("Invalid webhook request", err)
	}

	log.Printf("📨 [INTAKE] Webhook received: sender=%s, brand_id=%d, channel=%s, message_type=%s",
		req.Sender, req.BrandID, req.Channel, req.MessageType)

	// 2. Registrar la auditoría como pending
	webhookID := kernel.NewWebhookID()
	now := time.Now().UTC()
	audit := engine.WebhookMessage{
		ID:               webhookID,
		Sender:           req.Sender,
		BrandID:          req.BrandID,
		AccountID:        ptrx.Int64(req.AccountID),
		Channel:          req.Channel,
		ChannelAccountID: req.ChannelAccountID(),
		MessageType:      req.MessageType,
		MessageBody:      req.MessageBody,
		Status:           engine.WebhookStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.audits.Save(ctx, audit); err != nil {
		log.Printf("❌ [INTAKE] Failed to save webhook audit record: %v", err)
		return errorResponse("Failed to record webhook", err)
	}

	// 3. Archivar el payload crudo; no bloquea el procesamiento
	if err := s.archive.Archive(ctx, req.BrandID, webhookID, req.MessageBody); err != nil {
		log.Printf("⚠️  [INTAKE] Failed to archive webhook payload %s: %v", webhookID, err)
	}

	// 4. Normalizar el cuerpo según canal y tipo de mensaje
	msg := s.adapter.Normalize(req.Channel, req.MessageType, req.MessageBody)

	// 5. Serializar por identidad: los delay webhooks traen el identificador
	// real en el cuerpo, no en el sender
	identity := req.Sender
	if msg.UserStateID != "" {
		identity = msg.UserStateID
	}
	lockKey := fmt.Sprintf("%d:%s:%s", req.BrandID, req.Channel, identity)

	token, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		log.Printf("🔒 [INTAKE] Could not acquire identity lock for %s: %v", lockKey, err)
		s.closeAudit(ctx, webhookID, engine.WebhookStatusError, "identity lock busy: "+err.Error())
		resp := errorResponse("Message is already being processed for this user", err)
		resp.WebhookID = webhookID
		return resp
	}
	defer func() {
		if err := s.locks.Release(ctx, lockKey, token); err != nil {
			log.Printf("⚠️  [INTAKE] Failed to release identity lock for %s: %v", lockKey, err)
		}
	}()

	// 6. Orquestar el mensaje
	resp = s.orchestrator.HandleMessage(ctx, &req, msg)

	// 7. Cerrar la auditoría según el resultado
	status := engine.WebhookStatusProcessed
	detail := resp.Message
	if resp.Status == engine.ResponseStatusError {
		status = engine.WebhookStatusError
		if resp.ErrorDetails != "" {
			detail = resp.ErrorDetails
		}
	}
	s.closeAudit(ctx, webhookID, status, detail)

	resp.WebhookID = webhookID
	log.Printf("✅ [INTAKE] Webhook %s finished with status: %s", webhookID, resp.Status)
	return resp
}

// closeAudit actualiza el estado final del registro de auditoría. Un fallo
// acá no cambia la respuesta del webhook.
func (s *IntakeService) closeAudit(ctx context.Context, id kernel.WebhookID, status engine.WebhookStatus, detail string) {
	if err := s.audits.UpdateStatus(ctx, id, status, detail); err != nil {
		log.Printf("⚠️  [INTAKE] Failed to update webhook %s status to %s: %v", id, status, err)
	}
}
