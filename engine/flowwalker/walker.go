package flowwalker

import (
	"context"
	"log"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/engine/nodeexec"
	"github.com/agentcord/agentflow/engine/recorder"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/agentcord/agentflow/pkg/metrics"
)

// Walker identifica el siguiente nodo del flujo y lo procesa: los internos
// (condición, delay) se ejecutan aquí mismo, los externos se despachan al
// servicio del canal.
type Walker struct {
	catalog    *flow.Catalog
	processor  *nodeexec.Processor
	nodeClient engine.NodeProcessClient
	recorder   *recorder.Recorder
}

func NewWalker(
	catalog *flow.Catalog,
	processor *nodeexec.Processor,
	nodeClient engine.NodeProcessClient,
	recorder *recorder.Recorder,
) *Walker {
	return &Walker{
		catalog:    catalog,
		processor:  processor,
		nodeClient: nodeClient,
		recorder:   recorder,
	}
}

// Request es un paso de avance sobre el grafo. CurrentNodeID puede ser un
// nodo real o un answer id de botón (source sintético de arista).
type Request struct {
	Meta              engine.Metadata
	Graph             *flow.Graph
	UserIdentifier    string
	CurrentNodeID     string
	MatchedAnswerID   string
	NodeToProcess     string
	IsValidationError bool
	FallbackMessage   *string
	UserDetail        *engine.UserDetail
}

// Result is what one walk produced. NextNode nil with no error means the
// walk finished without advancing (validation exit).
type Result struct {
	NextNode       *flow.Node
	ProcessedValue any
}

// Walk resuelve el siguiente nodo según la matriz de entrada y lo procesa.
// Los nodos de mensaje en WhatsApp encadenan: cada mensaje consecutivo se
// despacha y registra exactamente una vez, hasta topar con un nodo que
// requiere respuesta, un nodo interno o el final del flujo.
func (w *Walker) Walk(ctx context.Context, req Request) (*Result, error) {
	g := req.Graph
	if g == nil || g.Flow == nil {
		return nil, errx.New("flow not loaded for walk", errx.TypeInternal)
	}
	if len(g.Edges) == 0 {
		return nil, engine.ErrWalkInvariant().
			WithDetail("flow_id", g.Flow.ID.String()).
			WithDetail("reason", "flow has no edges")
	}

	if req.CurrentNodeID != "" && !g.HasNode(req.CurrentNodeID) {
		// Es un answer id de botón, no un nodo; sirve como source de arista
		log.Printf("🔘 [IDENTIFY_NODE] current_node_id=%s is a button answer id, not a node", req.CurrentNodeID)
	}

	nextNode, err := w.resolveNextNode(g, req)
	if err != nil {
		return nil, err
	}

	// validation_exit: solo enviar el fallback, sin nodo que procesar
	if nextNode == nil {
		return w.dispatchFallbackOnly(ctx, req)
	}

	currentID := req.CurrentNodeID
	isValidationError := req.IsValidationError
	fallback := req.FallbackMessage
	visited := make(map[string]bool)
	maxNodes := len(g.Nodes) * 2

	var result *Result
	for hops := 0; hops < maxNodes; hops++ {
		if visited[nextNode.NodeID.String()] {
			log.Printf("⚠️  [IDENTIFY_NODE] Message chain revisited node %s, stopping", nextNode.NodeID)
			return result, nil
		}
		visited[nextNode.NodeID.String()] = true

		// Internos se procesan en el motor y cortan la cadena
		if w.catalog.IsInternal(nextNode.Type) {
			return w.processInternal(ctx, req, nextNode)
		}

		if err := w.dispatchExternal(ctx, req, currentID, nextNode, isValidationError, fallback); err != nil {
			return nil, err
		}

		w.recorder.Record(ctx, req.Meta, recorder.Entry{
			FlowID:         g.Flow.ID,
			NodeID:         nextNode.NodeID,
			NodeType:       nextNode.Type,
			NodeData:       nextNode.Data,
			UserIdentifier: req.UserIdentifier,
			UserDetail:     req.UserDetail,
		})

		result = &Result{NextNode: nextNode}

		chained := w.chainTarget(g, nextNode, req.Meta.Channel)
		if chained == nil {
			return result, nil
		}

		log.Printf("🔗 [IDENTIFY_NODE] Chaining message node %s -> %s", nextNode.NodeID, chained.NodeID)
		currentID = nextNode.NodeID.String()
		nextNode = chained
		isValidationError = false
		fallback = nil
	}

	log.Printf("⚠️  [IDENTIFY_NODE] Message chain hit node limit (%d), stopping", maxNodes)
	return result, nil
}

// resolveNextNode aplica la matriz de entrada: reintento de validación,
// nodo directo, o búsqueda por arista desde el answer id o nodo actual.
func (w *Walker) resolveNextNode(g *flow.Graph, req Request) (*flow.Node, error) {
	if req.IsValidationError {
		if req.NodeToProcess != "" {
			// mismatch_retry: volver a procesar el mismo nodo
			log.Printf("🔁 [IDENTIFY_NODE] Validation error - retrying node: %s", req.NodeToProcess)
			node := g.NodeByID(kernel.NodeID(req.NodeToProcess))
			if node == nil {
				return nil, flow.ErrNodeNotFound().WithDetail("node_id", req.NodeToProcess)
			}
			return node, nil
		}
		// validation_exit: solo mensaje de error, sin nodo
		log.Printf("🛑 [IDENTIFY_NODE] Validation exit - sending error message only")
		return nil, nil
	}

	if req.NodeToProcess != "" {
		log.Printf("🎯 [IDENTIFY_NODE] Processing node directly: %s", req.NodeToProcess)
		node := g.NodeByID(kernel.NodeID(req.NodeToProcess))
		if node == nil {
			return nil, flow.ErrNodeNotFound().WithDetail("node_id", req.NodeToProcess)
		}
		return node, nil
	}

	source := req.CurrentNodeID
	if req.MatchedAnswerID != "" {
		source = req.MatchedAnswerID
		log.Printf("🔎 [IDENTIFY_NODE] Using matched_answer_id as edge source: %s", source)
	}

	edge := g.FirstEdgeFrom(source)
	if edge == nil {
		return nil, engine.ErrWalkInvariant().
			WithDetail("source_node_id", source).
			WithDetail("reason", "no edge found from source")
	}
	log.Printf("✅ [IDENTIFY_NODE] Found edge: %s -> %s", source, edge.TargetNodeID)

	node := g.NodeByID(kernel.NodeID(edge.TargetNodeID))
	if node == nil {
		return nil, flow.ErrNodeNotFound().WithDetail("node_id", edge.TargetNodeID)
	}
	return node, nil
}

// processInternal ejecuta condición o delay y registra la transacción con el
// processed_value que decide la rama o la espera.
func (w *Walker) processInternal(ctx context.Context, req Request, node *flow.Node) (*Result, error) {
	res, err := w.processor.Process(ctx, req.Meta, req.Graph, node, req.UserIdentifier)
	if err != nil {
		return nil, err
	}

	w.recorder.Record(ctx, req.Meta, recorder.Entry{
		FlowID:         req.Graph.Flow.ID,
		NodeID:         node.NodeID,
		NodeType:       node.Type,
		NodeData:       node.Data,
		ProcessedValue: res.ProcessedValue,
		UserIdentifier: req.UserIdentifier,
		UserDetail:     req.UserDetail,
	})

	return &Result{NextNode: node, ProcessedValue: res.ProcessedValue}, nil
}

// dispatchExternal envía el nodo al servicio del canal. Solo WhatsApp tiene
// despacho; otros canales avanzan el estado sin llamar a nadie.
func (w *Walker) dispatchExternal(ctx context.Context, req Request, currentID string, node *flow.Node, isValidationError bool, fallback *string) error {
	if req.Meta.Channel != channels.ChannelWhatsApp {
		log.Printf("⏭️  [IDENTIFY_NODE] Skipping dispatch for channel=%s, next_node_id=%s", req.Meta.Channel, node.NodeID)
		return nil
	}

	resp, err := w.nodeClient.Dispatch(ctx, req.Meta.Channel, engine.ProcessNodeRequest{
		FlowID:            req.Graph.Flow.ID,
		CurrentNodeID:     currentID,
		NextNodeID:        node.NodeID.String(),
		NextNodeData:      node.Data,
		UserIdentifier:    req.UserIdentifier,
		BrandID:           req.Meta.BrandID,
		AccountID:         req.Meta.AccountID,
		Channel:           req.Meta.Channel,
		FallbackMessage:   fallback,
		IsValidationError: isValidationError,
		UserState:         map[string]any{},
	})
	if err != nil {
		metrics.NodeDispatches.WithLabelValues(string(node.Type), "error").Inc()
		return engine.ErrNodeDispatchFailed().
			WithDetail("node_id", node.NodeID.String()).
			WithDetail("error", err.Error())
	}
	if !resp.IsSuccess() {
		metrics.NodeDispatches.WithLabelValues(string(node.Type), "error").Inc()
		return engine.ErrNodeDispatchFailed().
			WithDetail("node_id", node.NodeID.String()).
			WithDetail("message", resp.Message)
	}
	metrics.NodeDispatches.WithLabelValues(string(node.Type), "success").Inc()
	return nil
}

// dispatchFallbackOnly cubre el validation_exit: el usuario agotó los
// reintentos y solo recibe el mensaje de fallback del nodo.
func (w *Walker) dispatchFallbackOnly(ctx context.Context, req Request) (*Result, error) {
	if req.Meta.Channel != channels.ChannelWhatsApp || !req.IsValidationError {
		log.Printf("⏭️  [IDENTIFY_NODE] Validation exit - skipping dispatch (channel=%s)", req.Meta.Channel)
		return &Result{}, nil
	}

	resp, err := w.nodeClient.Dispatch(ctx, req.Meta.Channel, engine.ProcessNodeRequest{
		FlowID:            req.Graph.Flow.ID,
		UserIdentifier:    req.UserIdentifier,
		BrandID:           req.Meta.BrandID,
		AccountID:         req.Meta.AccountID,
		Channel:           req.Meta.Channel,
		FallbackMessage:   req.FallbackMessage,
		IsValidationError: true,
		UserState:         map[string]any{},
	})
	if err != nil {
		metrics.NodeDispatches.WithLabelValues("validation_fallback", "error").Inc()
		return nil, engine.ErrNodeDispatchFailed().
			WithDetail("reason", "failed to send validation error message").
			WithDetail("error", err.Error())
	}
	if !resp.IsSuccess() {
		metrics.NodeDispatches.WithLabelValues("validation_fallback", "error").Inc()
		return nil, engine.ErrNodeDispatchFailed().
			WithDetail("reason", "failed to send validation error message").
			WithDetail("message", resp.Message)
	}

	metrics.NodeDispatches.WithLabelValues("validation_fallback", "success").Inc()
	log.Printf("📨 [IDENTIFY_NODE] Validation error message sent")
	return &Result{}, nil
}

// chainTarget devuelve el siguiente nodo auto-encadenable consecutivo
// (mensaje o plantilla), o nil si la cadena termina aquí.
func (w *Walker) chainTarget(g *flow.Graph, node *flow.Node, channel string) *flow.Node {
	if !node.Type.AutoChains() || channel != channels.ChannelWhatsApp {
		return nil
	}

	edge := g.FirstEdgeFrom(node.NodeID.String())
	if edge == nil {
		return nil
	}

	next := g.NodeByID(kernel.NodeID(edge.TargetNodeID))
	if next == nil || !next.Type.AutoChains() {
		return nil
	}
	return next
}
