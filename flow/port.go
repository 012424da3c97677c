package flow

import (
	"context"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// FlowRepository persistencia de flujos y su grafo
type FlowRepository interface {
	// CRUD básico
	Create(ctx context.Context, f Flow) error
	FindByID(ctx context.Context, id kernel.FlowID) (*Flow, error)
	Update(ctx context.Context, f Flow) error
	Delete(ctx context.Context, id kernel.FlowID) error
	UpdateStatus(ctx context.Context, id kernel.FlowID, status FlowStatus) error

	// List con paginación
	List(ctx context.Context, req FlowListRequest) (FlowListResponse, error)

	// Grafo: reemplazos completos dentro de una transacción
	ReplaceNodes(ctx context.Context, flowID kernel.FlowID, nodes []Node) error
	ReplaceEdges(ctx context.Context, flowID kernel.FlowID, edges []Edge) error
	ReplaceTriggers(ctx context.Context, flowID kernel.FlowID, triggers []Trigger) error

	// SaveGraph persiste flow + nodos + aristas + triggers atómicamente
	SaveGraph(ctx context.Context, f Flow, nodes []Node, edges []Edge, triggers []Trigger) error

	// Lecturas del grafo
	FindNodes(ctx context.Context, flowID kernel.FlowID) ([]Node, error)
	FindNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*Node, error)
	FindEdges(ctx context.Context, flowID kernel.FlowID) ([]Edge, error)
	FindTriggers(ctx context.Context, flowID kernel.FlowID) ([]Trigger, error)

	// FindTriggersByBrand devuelve los triggers de todos los flujos de la
	// marca en orden de inserción
	FindTriggersByBrand(ctx context.Context, brandID int64) ([]Trigger, error)
}

// NodeDetailRepository catálogo de tipos de nodo
type NodeDetailRepository interface {
	Seed(ctx context.Context, details []NodeDetail) error
	FindAll(ctx context.Context) ([]NodeDetail, error)
	FindByNodeID(ctx context.Context, nodeID NodeType) (*NodeDetail, error)
	FindByCategory(ctx context.Context, category NodeCategory) ([]NodeDetail, error)
}

// FlowSettingsRepository ajustes por nodo
type FlowSettingsRepository interface {
	Upsert(ctx context.Context, s FlowSettings) error
	FindByFlowAndNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*FlowSettings, error)
}

// ============================================================================
// Service Interfaces
// ============================================================================

// GraphLoader carga el grafo completo de un flujo para el motor
type GraphLoader interface {
	Load(ctx context.Context, flowID kernel.FlowID) (*Graph, error)
}
