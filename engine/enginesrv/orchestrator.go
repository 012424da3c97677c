package enginesrv

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/engine/flowwalker"
	"github.com/agentcord/agentflow/engine/replyvalidator"
	"github.com/agentcord/agentflow/engine/triggermatch"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/agentcord/agentflow/pkg/metrics"
)

// Orchestrator decide qué hacer con cada mensaje normalizado según el estado
// del usuario: disparar un flujo, validar una respuesta, interrumpir un delay
// o reanudar tras un delay completado. Nunca propaga errores al canal; toda
// falla se convierte en una respuesta con status de error.
type Orchestrator struct {
	users     engine.UserStateRepository
	delays    engine.DelayRepository
	graphs    flow.GraphLoader
	catalog   *flow.Catalog
	walker    *flowwalker.Walker
	validator *replyvalidator.Validator
	matcher   *triggermatch.Matcher
	leads     engine.LeadResolver
}

func NewOrchestrator(
	users engine.UserStateRepository,
	delays engine.DelayRepository,
	graphs flow.GraphLoader,
	catalog *flow.Catalog,
	walker *flowwalker.Walker,
	validator *replyvalidator.Validator,
	matcher *triggermatch.Matcher,
	leads engine.LeadResolver,
) *Orchestrator {
	return &Orchestrator{
		users,
		delays,
		graphs,
		catalog,
		walker,
		validator,
		matcher,
		leads,
	}
}

// HandleMessage es el entry point principal. Siempre devuelve una respuesta;
// el status distingue éxito, error y mensajes que no disparan nada.
func (o *Orchestrator) HandleMessage(ctx context.Context, req *engine.WebhookRequest, msg *channels.NormalizedMessage) *engine.WebhookResponse {
	// 1. Los webhooks de delay traen el identificador real del usuario en el
	// cuerpo; el sender del request es sintético.
	sender := req.Sender
	if msg.UserStateID != "" {
		sender = msg.UserStateID
		log.Printf("⏰ [USER_STATE] Using user_state_id from message data: %s", sender)
	}

	delayComplete := req.MessageType == engine.MessageTypeDelayComplete

	// 2. Buscar el usuario; si no existe, crearlo con su lead
	user, err := o.users.FindByIdentity(ctx, sender, req.BrandID)
	if err != nil && !errx.IsType(err, errx.TypeNotFound) {
		return errorResponse("Failed to load user state", err)
	}

	if user == nil {
		user, err = o.createUser(ctx, req, sender)
		if err != nil {
			return errorResponse("Failed to create user record", err)
		}

		meta := engine.MetadataFrom(req, user.ChannelAccountID)
		if msg.FlowID != "" {
			return o.triggerFlowDirect(ctx, meta, user, msg)
		}
		return o.checkTriggers(ctx, meta, req, user, msg)
	}

	log.Printf("👤 [USER_STATE] Existing user %s, is_in_automation=%v, current_flow_id=%v, current_node_id=%v",
		sender, user.IsInAutomation, user.CurrentFlowID, user.CurrentNodeID)

	// El channel_account_id guardado manda sobre el del request
	meta := engine.MetadataFrom(req, user.ChannelAccountID)

	// 3. Triggers programados apuntan a un flujo concreto
	if msg.FlowID != "" {
		return o.triggerFlowDirect(ctx, meta, user, msg)
	}

	// 4. Un delay_complete sin delay pendiente es un webhook tardío
	if delayComplete {
		if len(user.DelayNodeData) == 0 {
			log.Printf("⚠️  [USER_STATE] Delay complete webhook received but user %s has no delay_node_data, skipping", sender)
			return &engine.WebhookResponse{
				Status:  engine.ResponseStatusNoAutomation,
				Message: "Delay already processed or user exited automation",
			}
		}
		if !user.IsInAutomation || user.CurrentFlowID == nil {
			log.Printf("⚠️  [USER_STATE] Delay complete webhook received but user %s is not in automation, skipping", sender)
			return &engine.WebhookResponse{
				Status:  engine.ResponseStatusNoAutomation,
				Message: "User is not in automation",
			}
		}
	}

	inAutomation := user.IsInAutomation &&
		user.CurrentFlowID != nil &&
		(user.CurrentNodeID != nil || delayComplete)

	if !inAutomation {
		return o.checkTriggers(ctx, meta, req, user, msg)
	}

	// 5. Usuario en automatización: cargar el grafo una sola vez
	g, err := o.graphs.Load(ctx, *user.CurrentFlowID)
	if err != nil {
		log.Printf("❌ [USER_STATE] Failed to retrieve flow %s: %v", *user.CurrentFlowID, err)
		return errorResponse("Failed to retrieve flow", err)
	}

	// 6. Mensaje durante un delay: chequear interrupción
	if len(user.DelayNodeData) > 0 && !delayComplete {
		return o.handleDelayInterrupt(ctx, meta, g, user)
	}

	// 7. Timer cumplido: reanudar por la rama __not_interrupted
	if delayComplete {
		return o.handleDelayComplete(ctx, meta, g, user)
	}

	// 8. Respuesta normal dentro del flujo
	return o.handleReply(ctx, meta, g, user, msg)
}

// createUser arma el user state inicial con su user_detail por canal y el
// lead resuelto. El lead es best-effort: si el servicio externo falla, el
// usuario se crea sin lead.
func (o *Orchestrator) createUser(ctx context.Context, req *engine.WebhookRequest, sender string) (*engine.UserState, error) {
	log.Printf("🆕 [USER_STATE] Creating new user: %s, brand_id: %d", sender, req.BrandID)

	detail := &engine.UserDetail{}
	detail.SetIdentifierFor(req.Channel, sender)

	leadID, err := o.leads.Resolve(ctx, req.BrandID, req.AccountID, req.Channel, sender, detail)
	if err != nil {
		log.Printf("⚠️  [USER_STATE] Failed to resolve lead for user %s: %v. Continuing without lead.", sender, err)
		leadID = ""
	}

	now := time.Now().UTC()
	user := engine.UserState{
		ID:               kernel.NewUserStateID(),
		UserIdentifier:   sender,
		BrandID:          req.BrandID,
		AccountID:        ptrx.Int64(req.AccountID),
		Channel:          req.Channel,
		ChannelAccountID: req.ChannelAccountID(),
		UserDetail:       detail,
		LeadID:           leadID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := o.users.Save(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("✅ [USER_STATE] Created user record for %s, lead_id: %s", sender, leadID)
	return &user, nil
}

// checkTriggers corre el matching de triggers para usuarios fuera de
// automatización y, si hay match, arranca el flujo desde el nodo trigger.
func (o *Orchestrator) checkTriggers(ctx context.Context, meta engine.Metadata, req *engine.WebhookRequest, user *engine.UserState, msg *channels.NormalizedMessage) *engine.WebhookResponse {
	match, err := o.matcher.Match(ctx, meta.BrandID, req.MessageType, msg.TextContent())
	if err != nil {
		return errorResponse("Error identifying trigger", err)
	}
	if match == nil {
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusNoAutomation,
			Message: "No trigger matched",
		}
	}

	g, err := o.graphs.Load(ctx, match.FlowID)
	if err != nil {
		return errorResponse("Failed to retrieve flow", err)
	}

	return o.startFlow(ctx, meta, g, user, match.TriggerNodeID, "Trigger matched and flow initiated")
}

// triggerFlowDirect arranca un flujo concreto sin pasar por el matcher. Lo
// usan los triggers programados; usuarios ya en automatización no se tocan.
func (o *Orchestrator) triggerFlowDirect(ctx context.Context, meta engine.Metadata, user *engine.UserState, msg *channels.NormalizedMessage) *engine.WebhookResponse {
	if user.IsInAutomation && user.CurrentFlowID != nil {
		log.Printf("⏭️  [SCHEDULED_TRIGGER] User %s already in automation, skipping scheduled trigger", user.UserIdentifier)
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusNoAutomation,
			Message: "User already in automation",
		}
	}

	g, err := o.graphs.Load(ctx, kernel.FlowID(msg.FlowID))
	if err != nil {
		return errorResponse("Failed to retrieve flow", err)
	}
	if !g.Flow.IsPublished() {
		log.Printf("⚠️  [SCHEDULED_TRIGGER] Flow %s is not published (status: %s), skipping", g.Flow.ID, g.Flow.Status)
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusNoAutomation,
			Message: "Flow is not published",
		}
	}

	start := g.StartNode()
	if start == nil {
		return errorResponse("Flow has no start node", flow.ErrMissingStartNode().WithDetail("flow_id", g.Flow.ID.String()))
	}

	return o.startFlow(ctx, meta, g, user, start.NodeID, "Scheduled trigger initiated flow")
}

// startFlow camina desde el nodo trigger y deja el estado donde el
// post-procesamiento lo estacione.
func (o *Orchestrator) startFlow(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState, triggerNodeID kernel.NodeID, message string) *engine.WebhookResponse {
	log.Printf("🚀 [USER_STATE] Starting flow %s from trigger node %s for user %s", g.Flow.ID, triggerNodeID, user.UserIdentifier)

	res, err := o.walker.Walk(ctx, flowwalker.Request{
		Meta:           meta,
		Graph:          g,
		UserIdentifier: user.UserIdentifier,
		CurrentNodeID:  triggerNodeID.String(),
		UserDetail:     user.UserDetail,
	})
	if err != nil {
		return errorResponse("Node processing failed", err)
	}
	if res.NextNode != nil {
		o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, nil, 0)
	}
	metrics.AutomationsTriggered.WithLabelValues(meta.Channel).Inc()

	flowID := g.Flow.ID
	return &engine.WebhookResponse{
		Status:              engine.ResponseStatusSuccess,
		Message:             message,
		AutomationTriggered: true,
		FlowID:              &flowID,
		CurrentNodeID:       &triggerNodeID,
	}
}

// handleDelayInterrupt procesa un mensaje que llega mientras el usuario está
// estacionado en un delay. Con delayInterrupt el delay se cancela y el flujo
// sigue por la rama __interrupted; sin él, el mensaje se ignora.
func (o *Orchestrator) handleDelayInterrupt(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState) *engine.WebhookResponse {
	cfg, err := flow.ExtractDelayConfig(user.DelayNodeData)
	if err != nil {
		return errorResponse("Invalid delay node data in user state", err)
	}

	log.Printf("⏸️  [DELAY_INTERRUPT] User %s sent message during delay, delayInterrupt=%v", user.UserIdentifier, cfg.DelayInterrupt)

	if len(cfg.DelayResult) == 0 {
		return errorResponse("delayResult is missing or invalid in delay_node_data", nil)
	}

	if !cfg.DelayInterrupt {
		log.Printf("🙈 [DELAY_INTERRUPT] delayInterrupt=false, skipping message. Delay continues until completion.")
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusSuccess,
			Message: "User message ignored - delay continues (delayInterrupt=false)",
		}
	}

	selector := cfg.InterruptedSelector()
	if selector == "" {
		return errorResponse("interrupted result id not found in delayResult", nil)
	}

	// Cancelar el delay pendiente para que el worker no lo dispare
	if cfg.ID != "" {
		o.cancelPendingDelay(ctx, user, *user.CurrentFlowID, kernel.NodeID(cfg.ID))
	}

	res, err := o.walker.Walk(ctx, flowwalker.Request{
		Meta:           meta,
		Graph:          g,
		UserIdentifier: user.UserIdentifier,
		CurrentNodeID:  selector,
		UserDetail:     user.UserDetail,
	})
	if err != nil {
		return errorResponse("Node processing failed for interrupted delay", err)
	}
	if res.NextNode == nil {
		return errorResponse("Node processing returned no next node for interrupted delay", nil)
	}

	o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, nil, 0)

	if err := o.users.ClearDelayNodeData(ctx, user.ID); err != nil {
		log.Printf("❌ [DELAY_INTERRUPT] Failed to clear delay node data for user %s: %v", user.UserIdentifier, err)
	}

	log.Printf("✅ [DELAY_INTERRUPT] Delay interrupted and processed, cleared delay_node_data")
	flowID := g.Flow.ID
	return &engine.WebhookResponse{
		Status:              engine.ResponseStatusSuccess,
		Message:             "Delay interrupted and processed successfully",
		AutomationTriggered: true,
		FlowID:              &flowID,
	}
}

// handleDelayComplete reanuda el flujo por la rama __not_interrupted cuando
// el worker reporta que el timer venció.
func (o *Orchestrator) handleDelayComplete(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState) *engine.WebhookResponse {
	cfg, err := flow.ExtractDelayConfig(user.DelayNodeData)
	if err != nil {
		return errorResponse("Invalid delay node data in user state", err)
	}

	selector := cfg.NotInterruptedSelector()
	if selector == "" {
		return errorResponse("not_interrupted result id is missing in delayResult", nil)
	}

	log.Printf("⏰ [USER_STATE] Delay complete, resuming flow from selector: %s", selector)

	res, err := o.walker.Walk(ctx, flowwalker.Request{
		Meta:           meta,
		Graph:          g,
		UserIdentifier: user.UserIdentifier,
		CurrentNodeID:  selector,
	})
	if err != nil {
		return errorResponse("Node processing failed for delay webhook", err)
	}

	if res.NextNode != nil {
		o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, nil, 0)

		if err := o.users.ClearDelayNodeData(ctx, user.ID); err != nil {
			log.Printf("❌ [USER_STATE] Failed to clear delay node data for user %s: %v", user.UserIdentifier, err)
		}
		log.Printf("✅ [USER_STATE] Delay complete processed, cleared delay_node_data, next_node_id: %s", res.NextNode.NodeID)
	}

	flowID := g.Flow.ID
	return &engine.WebhookResponse{
		Status:  engine.ResponseStatusSuccess,
		Message: "Delay completed, flow resumed",
		FlowID:  &flowID,
	}
}

// handleReply valida la respuesta contra el nodo actual cuando éste espera
// input y avanza el flujo según el resultado.
func (o *Orchestrator) handleReply(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState, msg *channels.NormalizedMessage) *engine.WebhookResponse {
	if !msg.HasReply() {
		log.Printf("⚠️  [USER_STATE] Could not extract user reply from message")
		return errorResponse("Could not extract user reply", nil)
	}

	current := g.NodeByID(*user.CurrentNodeID)
	if current == nil {
		log.Printf("❌ [USER_STATE] Current node %s not found in flow %s", *user.CurrentNodeID, g.Flow.ID)
		return errorResponse("Current node not found in flow", nil)
	}

	expectsReply := o.catalog.RequiresUserInput(current.Type) || current.Type == flow.NodeTypeTriggerTemplate
	isText := current.Type == flow.NodeTypeQuestion

	walkReq := flowwalker.Request{
		Meta:           meta,
		Graph:          g,
		UserIdentifier: user.UserIdentifier,
		CurrentNodeID:  current.NodeID.String(),
		UserDetail:     user.UserDetail,
	}

	if !expectsReply {
		// Sin respuesta esperada: avanzar por la arista por defecto
		log.Printf("➡️  [USER_STATE] Current node has no expected reply, advancing via default edge")
		res, err := o.walker.Walk(ctx, walkReq)
		if err != nil {
			return errorResponse("Node processing failed", err)
		}
		if res.NextNode != nil {
			o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, nil, 0)
		}
		flowID := g.Flow.ID
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusSuccess,
			Message: "Message processed",
			FlowID:  &flowID,
		}
	}

	vres, err := o.validator.Validate(ctx, meta, replyvalidator.Input{
		Graph:          g,
		Node:           current,
		UserIdentifier: user.UserIdentifier,
		UserReply:      msg.TextContent(),
		IsText:         isText,
		FailureCount:   user.ValidationFailureCount,
	})
	if err != nil {
		return errorResponse("Reply validation failed", err)
	}

	switch vres.Outcome {
	case replyvalidator.OutcomeValidationExit:
		// Límite agotado: solo enviar el fallback. La automatización y el
		// contador quedan como están; una respuesta correcta aún avanza.
		log.Printf("🛑 [USER_STATE] Validation limit exceeded for user %s, sending error message and keeping automation active", user.UserIdentifier)
		walkReq.IsValidationError = true
		walkReq.FallbackMessage = ptrx.String(vres.FallbackMessage)
		if _, err := o.walker.Walk(ctx, walkReq); err != nil {
			return errorResponse("Failed to send validation error message", err)
		}
		flowID := g.Flow.ID
		return &engine.WebhookResponse{
			Status:  engine.ResponseStatusSuccess,
			Message: "Validation limit exceeded, error message sent",
			FlowID:  &flowID,
		}

	case replyvalidator.OutcomeMatched:
		if vres.MatchedAnswerID == "" {
			return errorResponse("Validation matched but matched_answer_id is empty", nil)
		}
		walkReq.MatchedAnswerID = vres.MatchedAnswerID

	case replyvalidator.OutcomeMatchedOtherNode:
		walkReq.NodeToProcess = vres.MatchedNodeID.String()

	case replyvalidator.OutcomeMismatchRetry:
		walkReq.IsValidationError = true
		walkReq.FallbackMessage = ptrx.String(vres.FallbackMessage)
		walkReq.NodeToProcess = current.NodeID.String()

	case replyvalidator.OutcomeUseDefaultEdge:
		// Avanza por la arista por defecto del nodo actual
	}

	res, err := o.walker.Walk(ctx, walkReq)
	if err != nil {
		return errorResponse("Node processing failed", err)
	}
	if res.NextNode != nil {
		o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, vres, 0)
	}

	flowID := g.Flow.ID
	return &engine.WebhookResponse{
		Status:  engine.ResponseStatusSuccess,
		Message: "Message processed",
		FlowID:  &flowID,
	}
}

// postProcess decide qué pasa después de procesar un nodo: seguir por la
// rama de una condición, estacionar en un delay o en un nodo de input, salir
// en un nodo terminal, o seguir caminando. La profundidad limita ciclos de
// mensajes que la validación del grafo no haya atrapado.
func (o *Orchestrator) postProcess(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState, node *flow.Node, processedValue any, vres *replyvalidator.Result, depth int) {
	if node == nil {
		return
	}
	if depth > len(g.Nodes)*2 {
		log.Printf("⚠️  [USER_STATE] Post-processing depth limit reached at node %s, stopping", node.NodeID)
		return
	}

	// Condición: el processed_value es el selector de la rama elegida
	if node.Type == flow.NodeTypeCondition && processedValue != nil {
		selector, ok := processedValue.(string)
		if !ok || selector == "" {
			log.Printf("❌ [USER_STATE] Condition node %s produced no branch selector", node.NodeID)
			return
		}

		log.Printf("🔀 [USER_STATE] Condition node processed, walking from selector %s", selector)
		res, err := o.walker.Walk(ctx, flowwalker.Request{
			Meta:           meta,
			Graph:          g,
			UserIdentifier: user.UserIdentifier,
			CurrentNodeID:  selector,
		})
		if err != nil {
			log.Printf("❌ [USER_STATE] Walk from condition selector failed: %v", err)
			return
		}
		if res.NextNode != nil {
			o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, vres, depth+1)
		}
		return
	}

	// Delay: estacionar al usuario y crear el registro para el worker
	if node.Type == flow.NodeTypeDelay && processedValue != nil {
		o.parkOnDelay(ctx, meta, g, user, node, vres)
		return
	}

	// Nodos que esperan respuesta estacionan al usuario
	if o.catalog.RequiresUserInput(node.Type) || node.Type == flow.NodeTypeTriggerTemplate {
		o.applyValidationUpdate(ctx, user, vres)

		flowID := g.Flow.ID
		nodeID := node.NodeID
		if err := o.users.UpdateAutomationState(ctx, user.ID, true, &flowID, &nodeID); err != nil {
			log.Printf("❌ [USER_STATE] Failed to park user %s at node %s: %v", user.UserIdentifier, nodeID, err)
			return
		}
		log.Printf("📍 [USER_STATE] User %s parked at node %s waiting for input", user.UserIdentifier, nodeID)
		return
	}

	// Nodo terminal: salir de la automatización
	if g.FirstEdgeFrom(node.NodeID.String()) == nil {
		log.Printf("🏁 [USER_STATE] Node %s is terminal, exiting automation for user %s", node.NodeID, user.UserIdentifier)
		if err := o.users.UpdateAutomationState(ctx, user.ID, false, nil, nil); err != nil {
			log.Printf("❌ [USER_STATE] Failed to exit automation for user %s: %v", user.UserIdentifier, err)
		}
		metrics.AutomationsExited.Inc()
		return
	}

	// No terminal: seguir caminando desde este nodo
	res, err := o.walker.Walk(ctx, flowwalker.Request{
		Meta:           meta,
		Graph:          g,
		UserIdentifier: user.UserIdentifier,
		CurrentNodeID:  node.NodeID.String(),
	})
	if err != nil {
		log.Printf("❌ [USER_STATE] Walk from node %s failed: %v", node.NodeID, err)
		return
	}
	if res.NextNode != nil {
		o.postProcess(ctx, meta, g, user, res.NextNode, res.ProcessedValue, nil, depth+1)
	}
}

// parkOnDelay deja al usuario estacionado en el nodo de delay con el nodo
// completo guardado en su estado, y crea la fila que el worker va a disparar.
func (o *Orchestrator) parkOnDelay(ctx context.Context, meta engine.Metadata, g *flow.Graph, user *engine.UserState, node *flow.Node, vres *replyvalidator.Result) {
	o.applyValidationUpdate(ctx, user, vres)

	flowID := g.Flow.ID
	nodeID := node.NodeID
	if err := o.users.UpdateAutomationState(ctx, user.ID, true, &flowID, &nodeID); err != nil {
		log.Printf("❌ [USER_STATE] Failed to park user %s on delay node %s: %v", user.UserIdentifier, nodeID, err)
		return
	}
	if err := o.users.SetDelayNodeData(ctx, user.ID, node.Data); err != nil {
		log.Printf("❌ [USER_STATE] Failed to store delay node data for user %s: %v", user.UserIdentifier, err)
		return
	}

	cfg, err := flow.ExtractDelayConfig(node.Data)
	if err != nil {
		log.Printf("❌ [USER_STATE] Cannot save delay record: invalid delay node data: %v", err)
		return
	}

	waitSeconds := cfg.WaitSeconds()
	startedAt := time.Now().UTC()
	completesAt := startedAt.Add(time.Duration(waitSeconds) * time.Second)

	delay := engine.Delay{
		ID:               kernel.NewDelayID(),
		UserIdentifier:   user.UserIdentifier,
		BrandID:          user.BrandID,
		FlowID:           flowID,
		DelayNodeID:      nodeID,
		DelayNodeData:    node.Data,
		DelayDuration:    cfg.DelayDuration.Int(),
		DelayUnit:        cfg.Unit(),
		WaitTimeSeconds:  waitSeconds,
		DelayStartedAt:   startedAt,
		DelayCompletesAt: completesAt,
		Channel:          meta.Channel,
		ChannelAccountID: meta.ChannelAccountID,
	}

	if err := o.delays.Create(ctx, delay); err != nil {
		log.Printf("⚠️  [USER_STATE] Failed to save delay record for node %s: %v", nodeID, err)
		return
	}
	metrics.DelaysScheduled.Inc()
	log.Printf("⏳ [USER_STATE] Delay record saved, completes at %s", completesAt.Format(time.RFC3339))
}

// applyValidationUpdate actualiza el contador de fallos según el resultado
// de la validación: un reintento lo incrementa, cualquier otro lo resetea.
func (o *Orchestrator) applyValidationUpdate(ctx context.Context, user *engine.UserState, vres *replyvalidator.Result) {
	if vres == nil {
		return
	}

	if vres.Outcome == replyvalidator.OutcomeMismatchRetry {
		count, err := o.users.RecordValidationFailure(ctx, user.ID, vres.FallbackMessage)
		if err != nil {
			log.Printf("❌ [USER_STATE] Failed to record validation failure for user %s: %v", user.UserIdentifier, err)
			return
		}
		metrics.ValidationFailures.Inc()
		log.Printf("🔂 [USER_STATE] Validation failure recorded for user %s, count=%d", user.UserIdentifier, count)
		return
	}

	if err := o.users.ResetValidation(ctx, user.ID); err != nil {
		log.Printf("❌ [USER_STATE] Failed to reset validation state for user %s: %v", user.UserIdentifier, err)
	}
}

// cancelPendingDelay marca como procesado el delay activo del nodo para que
// el worker no dispare un delay_complete tardío. Best-effort.
func (o *Orchestrator) cancelPendingDelay(ctx context.Context, user *engine.UserState, flowID kernel.FlowID, nodeID kernel.NodeID) {
	delay, err := o.delays.FindActive(ctx, user.UserIdentifier, user.BrandID, flowID, nodeID)
	if err != nil {
		if !errx.IsType(err, errx.TypeNotFound) {
			log.Printf("⚠️  [DELAY_INTERRUPT] Error looking up pending delay: %v", err)
		}
		return
	}

	if err := o.delays.MarkProcessed(ctx, delay.ID); err != nil {
		log.Printf("⚠️  [DELAY_INTERRUPT] Error cancelling delay record %s: %v", delay.ID, err)
		return
	}
	log.Printf("🚫 [DELAY_INTERRUPT] Cancelled pending delay record %s", delay.ID)
}

func errorResponse(message string, err error) *engine.WebhookResponse {
	resp := &engine.WebhookResponse{
		Status:  engine.ResponseStatusError,
		Message: message,
	}
	if err != nil {
		resp.ErrorDetails = err.Error()
	}
	return resp
}
