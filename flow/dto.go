package flow

import (
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Flow DTOs
// ============================================================================

// EdgeInput arista tal como la envía el builder
type EdgeInput struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
}

// CreateFlowRequest cuerpo de POST /flow/create. Los nodos llegan como
// documentos crudos del builder; id, type y flowNodeType se extraen de cada
// uno y el documento completo se guarda como node_data.
type CreateFlowRequest struct {
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name" validate:"required"`
	FlowNodes []map[string]any `json:"flowNodes" validate:"required,min=1"`
	FlowEdges []EdgeInput      `json:"flowEdges"`
	Transform *Transform       `json:"transform,omitempty"`
	IsPro     bool             `json:"isPro,omitempty"`
}

// UpdateFlowRequest cuerpo de PUT /flow/update/{id}. Solo se reemplazan los
// arreglos presentes; los triggers se rederivan únicamente si llegan nodos.
type UpdateFlowRequest struct {
	Name      *string           `json:"name,omitempty"`
	FlowNodes *[]map[string]any `json:"flowNodes,omitempty"`
	FlowEdges *[]EdgeInput      `json:"flowEdges,omitempty"`
	Transform *Transform        `json:"transform,omitempty"`
	IsPro     *bool             `json:"isPro,omitempty"`
}

// UpdateFlowStatusRequest cuerpo de POST /flow/status/{id}
type UpdateFlowStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// FlowDetailResponse flujo completo con su grafo
type FlowDetailResponse struct {
	Flow      Flow             `json:"flow"`
	FlowNodes []map[string]any `json:"flowNodes"`
	FlowEdges []Edge           `json:"flowEdges"`
	Triggers  []Trigger        `json:"triggers"`
}

type FlowListRequest struct {
	storex.PaginationOptions
	BrandID   int64  `json:"brand_id" validate:"required"`
	AccountID *int64 `json:"user_id,omitempty"`
	Status    *FlowStatus
}

func (flr FlowListRequest) GetOffset() int {
	return (flr.Page - 1) * flr.PageSize
}

type FlowListResponse = storex.Paginated[Flow]

// ============================================================================
// Flow Settings DTOs
// ============================================================================

type UpsertFlowSettingsRequest struct {
	FlowID kernel.FlowID  `json:"flow_id" validate:"required"`
	NodeID kernel.NodeID  `json:"node_id" validate:"required"`
	Email  *EmailSettings `json:"email,omitempty"`
}
