package nodeexec

import (
	"context"
	"log"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
)

// DelayExecutor ejecuta nodos de espera
type DelayExecutor struct{}

var _ Executor = (*DelayExecutor)(nil)

func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{}
}

// Execute returns the wait descriptor the orchestrator needs to park the
// user. The delay row itself is created later, after the walk finishes.
func (de *DelayExecutor) Execute(ctx context.Context, meta engine.Metadata, g *flow.Graph, node *flow.Node, userIdentifier string) (any, error) {
	cfg, err := flow.ExtractDelayConfig(node.Data)
	if err != nil {
		return nil, errx.Wrap(err, "invalid delay node data", errx.TypeValidation)
	}

	processedValue := map[string]any{
		"delay_duration":    cfg.DelayDuration.Int(),
		"delay_unit":        cfg.Unit(),
		"wait_time_seconds": cfg.WaitSeconds(),
		"wait_for_reply":    cfg.WaitForReply,
	}

	log.Printf("⏰ [PROCESS_INTERNAL] Delay node %s processed: %d seconds", node.NodeID, cfg.WaitSeconds())
	return processedValue, nil
}

func (de *DelayExecutor) SupportsType(nodeType flow.NodeType) bool {
	return nodeType == flow.NodeTypeDelay
}
