package delayscheduler

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/metrics"
)

const (
	delayPollInterval = 20 * time.Second
	delayBatchSize    = 50
)

// DelayWorker revisa periódicamente los delays vencidos y sintetiza un
// webhook delay_complete por cada uno, usando el mismo pipeline de intake
// que un mensaje real. Así la reanudación del flujo pasa por la auditoría
// y el lock de identidad como cualquier otro mensaje.
type DelayWorker struct {
	delays        engine.DelayRepository
	users         engine.UserStateRepository
	processor     engine.WebhookProcessor
	pollInterval  time.Duration
	workerRunning bool
	stopChan      chan struct{}
}

func NewDelayWorker(
	delays engine.DelayRepository,
	users engine.UserStateRepository,
	processor engine.WebhookProcessor,
) *DelayWorker {
	return &DelayWorker{
		delays:       delays,
		users:        users,
		processor:    processor,
		pollInterval: delayPollInterval,
		stopChan:     make(chan struct{}),
	}
}

// StartWorker starts the background worker
func (w *DelayWorker) StartWorker(ctx context.Context) {
	if w.workerRunning {
		log.Println("⚠️  Delay worker already running")
		return
	}

	w.workerRunning = true
	log.Println("🚀 Starting delay worker...")

	go w.workerLoop(ctx)
}

// StopWorker stops the background worker
func (w *DelayWorker) StopWorker() {
	if !w.workerRunning {
		return
	}

	log.Println("🛑 Stopping delay worker...")
	close(w.stopChan)
	w.workerRunning = false
}

func (w *DelayWorker) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️  Delay worker stopped (context done)")
			return
		case <-w.stopChan:
			log.Println("⏹️  Delay worker stopped")
			return
		case <-ticker.C:
			if err := w.processDueDelays(ctx); err != nil {
				log.Printf("❌ Error processing due delays: %v", err)
			}
		}
	}
}

func (w *DelayWorker) processDueDelays(ctx context.Context) error {
	due, err := w.delays.FindDue(ctx, time.Now().UTC(), delayBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	log.Printf("📋 Found %d expired delay(s) to process", len(due))

	for _, delay := range due {
		if err := w.processDelay(ctx, delay); err != nil {
			// Se reintenta en el próximo ciclo porque el delay sigue pendiente
			log.Printf("❌ Error processing delay %s: %v", delay.ID, err)
			continue
		}
		log.Printf("✅ Delay %s processed and marked as complete for user %s", delay.ID, delay.UserIdentifier)
	}

	return nil
}

// processDelay dispara el webhook delay_complete y marca el delay como
// procesado. Si el usuario ya no existe, el delay se marca igual para no
// reintentarlo en cada ciclo.
func (w *DelayWorker) processDelay(ctx context.Context, delay *engine.Delay) error {
	user, err := w.users.FindByIdentity(ctx, delay.UserIdentifier, delay.BrandID)
	if err != nil && !errx.IsType(err, errx.TypeNotFound) {
		return err
	}

	if user == nil {
		log.Printf("⚠️  User %s not found, skipping delay_complete webhook for delay %s", delay.UserIdentifier, delay.ID)
		return w.delays.MarkProcessed(ctx, delay.ID)
	}

	// El sender es el identificador real del usuario para que el intake
	// encuentre su estado; el cuerpo lleva el contexto del delay
	req := engine.WebhookRequest{
		Sender:            delay.UserIdentifier,
		BrandID:           delay.BrandID,
		AccountID:         ptrx.Int64ValueOr(user.AccountID, 0),
		ChannelIdentifier: delay.ChannelAccountID,
		Channel:           delay.Channel,
		MessageType:       engine.MessageTypeDelayComplete,
		MessageBody: map[string]any{
			"user_identifier":    delay.UserIdentifier,
			"flow_id":            delay.FlowID.String(),
			"node_id":            delay.DelayNodeID.String(),
			"delay_completed_at": time.Now().UTC().Format(time.RFC3339),
			"delay_duration":     delay.DelayDuration,
			"delay_unit":         delay.DelayUnit,
		},
	}

	resp := w.processor.Process(ctx, req)
	if resp.Status == engine.ResponseStatusError {
		log.Printf("❌ delay_complete webhook for user %s failed: %s", delay.UserIdentifier, resp.Message)
	} else {
		metrics.DelaysFired.Inc()
		log.Printf("▶️  Triggered delay_complete webhook for user %s, delay %s", delay.UserIdentifier, delay.ID)
	}

	return w.delays.MarkProcessed(ctx, delay.ID)
}
