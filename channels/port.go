package channels

import (
	"context"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Archive Interfaces
// ============================================================================

// MessageArchiver guarda el payload crudo de cada webhook fuera de la base,
// para auditoría y replay. Las implementaciones nunca deben bloquear el
// procesamiento del mensaje: el intake trata sus errores como warnings.
type MessageArchiver interface {
	Archive(ctx context.Context, brandID int64, webhookID kernel.WebhookID, payload map[string]any) error
}
