package flow

import (
	"time"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Flow Settings
// ============================================================================

// EmailSettings configuración de envío para nodos de email
type EmailSettings struct {
	SourceEmail string `json:"source_email,omitempty"`
}

// FlowSettings ajustes por nodo que no forman parte del grafo (hoy solo
// email; la forma admite más secciones)
type FlowSettings struct {
	FlowID    kernel.FlowID  `db:"flow_id" json:"flow_id"`
	NodeID    kernel.NodeID  `db:"node_id" json:"node_id"`
	Email     *EmailSettings `db:"email" json:"email,omitempty"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
