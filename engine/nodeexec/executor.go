package nodeexec

import (
	"context"
	"fmt"
	"log"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
)

// Executor procesa un tipo de nodo interno y devuelve su processed_value.
type Executor interface {
	Execute(ctx context.Context, meta engine.Metadata, g *flow.Graph, node *flow.Node, userIdentifier string) (any, error)
	SupportsType(nodeType flow.NodeType) bool
}

// Result is what an internal node produced. The processed value is a branch
// selector for conditions and a wait descriptor for delays.
type Result struct {
	NodeType       flow.NodeType
	ProcessedValue any
}

// Processor enruta nodos internos (condición, delay) a su executor.
type Processor struct {
	executors map[flow.NodeType]Executor
}

func NewProcessor(executors ...Executor) *Processor {
	p := &Processor{
		executors: make(map[flow.NodeType]Executor),
	}

	for _, ex := range executors {
		p.Register(ex)
	}

	return p
}

func (p *Processor) Register(executor Executor) {
	// Register for all supported types
	for _, nodeType := range []flow.NodeType{
		flow.NodeTypeCondition,
		flow.NodeTypeDelay,
	} {
		if executor.SupportsType(nodeType) {
			p.executors[nodeType] = executor
			log.Printf("✅ Registered executor for node type: %s", nodeType)
		}
	}
}

// Process ejecuta el nodo interno con el executor registrado para su tipo.
func (p *Processor) Process(ctx context.Context, meta engine.Metadata, g *flow.Graph, node *flow.Node, userIdentifier string) (*Result, error) {
	if node == nil {
		return nil, errx.New("internal node not found in flow", errx.TypeNotFound)
	}

	executor, ok := p.executors[node.Type]
	if !ok {
		return nil, errx.New(fmt.Sprintf("unknown internal node type: %s", node.Type), errx.TypeValidation)
	}

	log.Printf("⚙️  [PROCESS_INTERNAL] Processing %s node %s", node.Type, node.NodeID)

	processedValue, err := executor.Execute(ctx, meta, g, node, userIdentifier)
	if err != nil {
		return nil, err
	}

	return &Result{
		NodeType:       node.Type,
		ProcessedValue: processedValue,
	}, nil
}
