package flowsrv

import (
	"context"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// Loader carga el grafo completo de un flujo para el motor
type Loader struct {
	flows flow.FlowRepository
}

var _ flow.GraphLoader = (*Loader)(nil)

func NewLoader(flows flow.FlowRepository) *Loader {
	return &Loader{flows: flows}
}

// Load reads the flow with its nodes and edges and indexes them for walking.
func (l *Loader) Load(ctx context.Context, flowID kernel.FlowID) (*flow.Graph, error) {
	f, err := l.flows.FindByID(ctx, flowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", flowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	nodes, err := l.flows.FindNodes(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow nodes", errx.TypeInternal)
	}
	edges, err := l.flows.FindEdges(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow edges", errx.TypeInternal)
	}
	return flow.NewGraph(f, nodes, edges), nil
}
