package flowsrv

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/robfig/cron/v3"
)

const defaultPageSize = 20

// Service proporciona operaciones de negocio para flujos: CRUD del grafo,
// transición de estado, catálogo de nodos, ajustes por nodo y disparos
// programados.
type Service struct {
	flows     flow.FlowRepository
	details   flow.NodeDetailRepository
	settings  flow.FlowSettingsRepository
	schedules engine.FlowScheduleRepository

	cronParser    cron.Parser
	maxChainDepth int
}

// NewService crea una nueva instancia del servicio de flujos
func NewService(
	flows flow.FlowRepository,
	details flow.NodeDetailRepository,
	settings flow.FlowSettingsRepository,
	schedules engine.FlowScheduleRepository,
	maxChainDepth int,
) *Service {
	if maxChainDepth <= 0 {
		maxChainDepth = flow.DefaultMaxChainDepth
	}
	return &Service{
		flows:         flows,
		details:       details,
		settings:      settings,
		schedules:     schedules,
		cronParser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		maxChainDepth: maxChainDepth,
	}
}

// ============================================================================
// Flow CRUD
// ============================================================================

// CreateFlow valida el grafo del builder, deriva los triggers del nodo
// inicial y persiste todo en una transacción. Los flujos nacen en draft.
func (s *Service) CreateFlow(ctx context.Context, accountID, brandID int64, req flow.CreateFlowRequest) (*flow.Flow, error) {
	// 1. Validar datos mínimos
	if strings.TrimSpace(req.Name) == "" {
		return nil, flow.ErrInvalidFlowData().WithDetail("field", "name")
	}
	if len(req.FlowNodes) == 0 {
		return nil, flow.ErrInvalidFlowData().WithDetail("field", "flowNodes")
	}

	flowID := kernel.FlowID(req.ID)
	if flowID.IsEmpty() {
		flowID = kernel.NewFlowID()
	}

	// 2. Parsear nodos y aristas tal como los envía el builder
	nodes, err := parseNodes(flowID, req.FlowNodes)
	if err != nil {
		return nil, err
	}
	edges := parseEdges(flowID, req.FlowEdges)

	// 3. Validación estructural antes de tocar la base
	if violations := flow.ValidateGraph(nodes, edges, s.maxChainDepth); len(violations) > 0 {
		return nil, flow.ErrFlowGraphInvalid().WithDetail("violations", violations)
	}

	// 4. Derivar triggers del nodo inicial
	triggers := deriveTriggers(flowID, nodes)

	now := time.Now().UTC()
	f := flow.Flow{
		ID:        flowID,
		Name:      req.Name,
		Status:    flow.FlowStatusDraft,
		BrandID:   brandID,
		AccountID: accountID,
		IsPro:     req.IsPro,
		Transform: req.Transform,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 5. Persistir flujo + grafo + triggers atómicamente
	if err := s.flows.SaveGraph(ctx, f, nodes, edges, triggers); err != nil {
		return nil, errx.Wrap(err, "failed to save flow graph", errx.TypeInternal)
	}

	log.Printf("✅ [FLOW] Created flow %s (%s): %d nodes, %d edges, %d triggers for brand %d",
		f.ID, f.Name, len(nodes), len(edges), len(triggers), brandID)
	return &f, nil
}

// UpdateFlow reemplaza las partes del flujo presentes en la petición y
// conserva el resto. Los triggers se rederivan solo cuando llegan nodos y el
// nodo inicial produce un tipo de trigger; si no, se conservan los previos.
func (s *Service) UpdateFlow(ctx context.Context, accountID, brandID int64, flowID kernel.FlowID, req flow.UpdateFlowRequest) (*flow.Flow, error) {
	// 1. Cargar y verificar propiedad
	existing, err := s.flows.FindByID(ctx, flowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", flowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	if existing.BrandID != brandID || existing.AccountID != accountID {
		return nil, flow.ErrFlowAccessDenied().WithDetail("flow_id", flowID.String())
	}

	// 2. Campos escalares: lo no enviado se conserva
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		existing.Name = *req.Name
	}
	if req.Transform != nil {
		existing.Transform = req.Transform
	}
	if req.IsPro != nil {
		existing.IsPro = *req.IsPro
	}
	existing.UpdatedAt = time.Now().UTC()

	// 3. Grafo efectivo para validar: lo enviado reemplaza, lo ausente se
	// lee de la base
	var nodes []flow.Node
	if req.FlowNodes != nil {
		nodes, err = parseNodes(flowID, *req.FlowNodes)
		if err != nil {
			return nil, err
		}
	} else {
		nodes, err = s.flows.FindNodes(ctx, flowID)
		if err != nil {
			return nil, errx.Wrap(err, "failed to load flow nodes", errx.TypeInternal)
		}
	}
	var edges []flow.Edge
	if req.FlowEdges != nil {
		edges = parseEdges(flowID, *req.FlowEdges)
	} else {
		edges, err = s.flows.FindEdges(ctx, flowID)
		if err != nil {
			return nil, errx.Wrap(err, "failed to load flow edges", errx.TypeInternal)
		}
	}
	if violations := flow.ValidateGraph(nodes, edges, s.maxChainDepth); len(violations) > 0 {
		return nil, flow.ErrFlowGraphInvalid().WithDetail("violations", violations)
	}

	// 4. Persistir. Con el grafo completo en la petición se usa el guardado
	// atómico; con partes sueltas se reemplaza cada arreglo por separado.
	if req.FlowNodes != nil && req.FlowEdges != nil {
		triggers := deriveTriggers(flowID, nodes)
		if triggers == nil {
			triggers, err = s.flows.FindTriggers(ctx, flowID)
			if err != nil {
				return nil, errx.Wrap(err, "failed to load flow triggers", errx.TypeInternal)
			}
		}
		if err := s.flows.SaveGraph(ctx, *existing, nodes, edges, triggers); err != nil {
			return nil, errx.Wrap(err, "failed to save flow graph", errx.TypeInternal)
		}
	} else {
		if err := s.flows.Update(ctx, *existing); err != nil {
			return nil, errx.Wrap(err, "failed to update flow", errx.TypeInternal)
		}
		if req.FlowNodes != nil {
			if err := s.flows.ReplaceNodes(ctx, flowID, nodes); err != nil {
				return nil, errx.Wrap(err, "failed to replace flow nodes", errx.TypeInternal)
			}
			if triggers := deriveTriggers(flowID, nodes); triggers != nil {
				if err := s.flows.ReplaceTriggers(ctx, flowID, triggers); err != nil {
					return nil, errx.Wrap(err, "failed to replace flow triggers", errx.TypeInternal)
				}
			}
		}
		if req.FlowEdges != nil {
			if err := s.flows.ReplaceEdges(ctx, flowID, edges); err != nil {
				return nil, errx.Wrap(err, "failed to replace flow edges", errx.TypeInternal)
			}
		}
	}

	log.Printf("✅ [FLOW] Updated flow %s (%s)", existing.ID, existing.Name)
	return existing, nil
}

// UpdateFlowStatus cambia el estado de publicación. Solo acepta "published"
// y "stop"; un flujo detenido no vuelve a draft. Publicar exige exactamente
// un nodo inicial.
func (s *Service) UpdateFlowStatus(ctx context.Context, accountID, brandID int64, flowID kernel.FlowID, status string) (*flow.Flow, error) {
	existing, err := s.flows.FindByID(ctx, flowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", flowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	if existing.BrandID != brandID || existing.AccountID != accountID {
		return nil, flow.ErrFlowAccessDenied().WithDetail("flow_id", flowID.String())
	}

	var target flow.FlowStatus
	switch status {
	case "published":
		target = flow.FlowStatusPublished
	case "stop":
		target = flow.FlowStatusStopped
	default:
		return nil, flow.ErrInvalidFlowStatus().WithDetail("status", status)
	}

	if target == flow.FlowStatusPublished {
		nodes, err := s.flows.FindNodes(ctx, flowID)
		if err != nil {
			return nil, errx.Wrap(err, "failed to load flow nodes", errx.TypeInternal)
		}
		starts := 0
		for i := range nodes {
			if nodes[i].IsStartNode() {
				starts++
			}
		}
		if starts == 0 {
			return nil, flow.ErrMissingStartNode().WithDetail("flow_id", flowID.String())
		}
		if starts > 1 {
			return nil, flow.ErrFlowGraphInvalid().
				WithDetail("violations", []string{fmt.Sprintf("flow has %d start nodes, expected one", starts)})
		}
	}

	if err := s.flows.UpdateStatus(ctx, flowID, target); err != nil {
		return nil, errx.Wrap(err, "failed to update flow status", errx.TypeInternal)
	}
	existing.Status = target
	existing.UpdatedAt = time.Now().UTC()

	log.Printf("✅ [FLOW_STATUS] Flow %s status changed to %s", flowID, target)
	return existing, nil
}

// ListFlows lista los flujos de la marca y cuenta del solicitante.
func (s *Service) ListFlows(ctx context.Context, accountID, brandID int64, opts storex.PaginationOptions, status *flow.FlowStatus) (flow.FlowListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	out, err := s.flows.List(ctx, flow.FlowListRequest{
		PaginationOptions: opts,
		BrandID:           brandID,
		AccountID:         &accountID,
		Status:            status,
	})
	if err != nil {
		return flow.FlowListResponse{}, errx.Wrap(err, "failed to list flows", errx.TypeInternal)
	}
	return out, nil
}

// GetFlowDetail devuelve el flujo con su grafo completo. No exige propiedad:
// el builder carga flujos compartidos entre cuentas de la misma marca.
func (s *Service) GetFlowDetail(ctx context.Context, flowID kernel.FlowID) (*flow.FlowDetailResponse, error) {
	f, err := s.flows.FindByID(ctx, flowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", flowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	nodes, err := s.flows.FindNodes(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow nodes", errx.TypeInternal)
	}
	edges, err := s.flows.FindEdges(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow edges", errx.TypeInternal)
	}
	triggers, err := s.flows.FindTriggers(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load flow triggers", errx.TypeInternal)
	}

	rawNodes := make([]map[string]any, 0, len(nodes))
	for i := range nodes {
		rawNodes = append(rawNodes, nodes[i].Data)
	}
	return &flow.FlowDetailResponse{
		Flow:      *f,
		FlowNodes: rawNodes,
		FlowEdges: edges,
		Triggers:  triggers,
	}, nil
}

// ============================================================================
// Node Catalog
// ============================================================================

func (s *Service) ListNodeDetails(ctx context.Context) ([]flow.NodeDetail, error) {
	out, err := s.details.FindAll(ctx)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list node details", errx.TypeInternal)
	}
	return out, nil
}

func (s *Service) GetNodeDetail(ctx context.Context, nodeID string) (*flow.NodeDetail, error) {
	d, err := s.details.FindByNodeID(ctx, flow.NodeType(nodeID))
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrNodeDetailNotFound().WithDetail("node_id", nodeID)
		}
		return nil, errx.Wrap(err, "failed to load node detail", errx.TypeInternal)
	}
	return d, nil
}

func (s *Service) ListNodeDetailsByCategory(ctx context.Context, category string) ([]flow.NodeDetail, error) {
	if !flow.ValidCategory(category) {
		return nil, flow.ErrInvalidCategory().WithDetail("category", category)
	}
	out, err := s.details.FindByCategory(ctx, flow.NodeCategory(category))
	if err != nil {
		return nil, errx.Wrap(err, "failed to list node details by category", errx.TypeInternal)
	}
	return out, nil
}

// ============================================================================
// Flow Settings
// ============================================================================

func (s *Service) UpsertFlowSettings(ctx context.Context, req flow.UpsertFlowSettingsRequest) (*flow.FlowSettings, error) {
	if req.FlowID.IsEmpty() || req.NodeID.IsEmpty() {
		return nil, flow.ErrInvalidFlowData().WithDetail("reason", "flow_id and node_id are required")
	}
	settings := flow.FlowSettings{
		FlowID:    req.FlowID,
		NodeID:    req.NodeID,
		Email:     req.Email,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, errx.Wrap(err, "failed to upsert flow settings", errx.TypeInternal)
	}
	return &settings, nil
}

func (s *Service) GetFlowSettings(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.FlowSettings, error) {
	out, err := s.settings.FindByFlowAndNode(ctx, flowID, nodeID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowSettingsNotFound().
				WithDetail("flow_id", flowID.String()).
				WithDetail("node_id", nodeID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow settings", errx.TypeInternal)
	}
	return out, nil
}

// ============================================================================
// Flow Schedules
// ============================================================================

// CreateSchedule programa el disparo de un flujo. No exige que el flujo esté
// publicado: el worker lo verifica al disparar, así que se puede programar
// antes de publicar.
func (s *Service) CreateSchedule(ctx context.Context, accountID, brandID int64, req engine.CreateScheduleRequest) (*engine.FlowSchedule, error) {
	// 1. El flujo debe existir y pertenecer a la marca y cuenta
	f, err := s.flows.FindByID(ctx, req.FlowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", req.FlowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	if f.BrandID != brandID || f.AccountID != accountID {
		return nil, flow.ErrFlowAccessDenied().WithDetail("flow_id", req.FlowID.String())
	}

	// 2. Validar la config según el tipo y calcular el primer next_run_at
	now := time.Now().UTC()
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	var nextRun *time.Time
	switch req.ScheduleType {
	case engine.ScheduleTypeCron:
		if req.CronExpression == nil || *req.CronExpression == "" {
			return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "cron_expression is required")
		}
		loc, locErr := time.LoadLocation(timezone)
		if locErr != nil {
			return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "unknown timezone "+timezone)
		}
		sched, parseErr := s.cronParser.Parse(*req.CronExpression)
		if parseErr != nil {
			return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "invalid cron expression: "+parseErr.Error())
		}
		next := sched.Next(now.In(loc))
		nextRun = &next
	case engine.ScheduleTypeInterval:
		if req.IntervalSeconds == nil || *req.IntervalSeconds <= 0 {
			return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "interval_seconds must be positive")
		}
		next := now.Add(time.Duration(*req.IntervalSeconds) * time.Second)
		nextRun = &next
	case engine.ScheduleTypeOnce:
		if req.ScheduledAt == nil {
			return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "scheduled_at is required")
		}
		at := req.ScheduledAt.UTC()
		nextRun = &at
	default:
		return nil, engine.ErrInvalidScheduleConfig().WithDetail("schedule_type", string(req.ScheduleType))
	}

	schedule := engine.FlowSchedule{
		ID:                kernel.NewScheduleID(),
		BrandID:           brandID,
		AccountID:         accountID,
		FlowID:            req.FlowID,
		ScheduleType:      req.ScheduleType,
		CronExpression:    req.CronExpression,
		IntervalSeconds:   req.IntervalSeconds,
		ScheduledAt:       req.ScheduledAt,
		Channel:           req.Channel,
		ChannelAccountID:  req.ChannelAccountID,
		TargetIdentifiers: req.TargetIdentifiers,
		IsActive:          true,
		NextRunAt:         nextRun,
		Timezone:          timezone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !schedule.IsValid() {
		return nil, engine.ErrInvalidScheduleConfig().WithDetail("reason", "schedule needs a channel and at least one target identifier")
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, errx.Wrap(err, "failed to create flow schedule", errx.TypeInternal)
	}

	log.Printf("⏰ [SCHEDULE] Created %s schedule %s for flow %s (%d targets)",
		schedule.ScheduleType, schedule.ID, schedule.FlowID, len(schedule.TargetIdentifiers))
	return &schedule, nil
}

// ListSchedules devuelve los disparos programados de un flujo.
func (s *Service) ListSchedules(ctx context.Context, accountID, brandID int64, flowID kernel.FlowID) ([]*engine.FlowSchedule, error) {
	f, err := s.flows.FindByID(ctx, flowID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, flow.ErrFlowNotFound().WithDetail("flow_id", flowID.String())
		}
		return nil, errx.Wrap(err, "failed to load flow", errx.TypeInternal)
	}
	if f.BrandID != brandID || f.AccountID != accountID {
		return nil, flow.ErrFlowAccessDenied().WithDetail("flow_id", flowID.String())
	}
	out, err := s.schedules.FindByFlow(ctx, flowID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list flow schedules", errx.TypeInternal)
	}
	return out, nil
}

// DeleteSchedule elimina un disparo programado.
func (s *Service) DeleteSchedule(ctx context.Context, accountID, brandID int64, scheduleID kernel.ScheduleID) error {
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return engine.ErrScheduleNotFound().WithDetail("schedule_id", scheduleID.String())
		}
		return errx.Wrap(err, "failed to load flow schedule", errx.TypeInternal)
	}
	if schedule.BrandID != brandID || schedule.AccountID != accountID {
		return flow.ErrFlowAccessDenied().WithDetail("schedule_id", scheduleID.String())
	}
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		return errx.Wrap(err, "failed to delete flow schedule", errx.TypeInternal)
	}
	log.Printf("🗑️  [SCHEDULE] Deleted schedule %s for flow %s", scheduleID, schedule.FlowID)
	return nil
}

// ============================================================================
// Builder Payload Parsing
// ============================================================================

// parseNodes extrae id, type y flowNodeType de cada documento del builder y
// guarda el documento completo como node_data.
func parseNodes(flowID kernel.FlowID, raw []map[string]any) ([]flow.Node, error) {
	nodes := make([]flow.Node, 0, len(raw))
	for i, doc := range raw {
		id, _ := doc["id"].(string)
		if id == "" {
			return nil, flow.ErrInvalidNodeData().
				WithDetail("position", i).
				WithDetail("reason", "node has no id")
		}
		typ, _ := doc["type"].(string)
		if typ == "" {
			return nil, flow.ErrInvalidNodeData().
				WithDetail("node_id", id).
				WithDetail("reason", "node has no type")
		}
		flowNodeType, _ := doc["flowNodeType"].(string)
		nodes = append(nodes, flow.Node{
			FlowID:       flowID,
			NodeID:       kernel.NodeID(id),
			Type:         flow.NodeType(typ),
			FlowNodeType: flowNodeType,
			Data:         doc,
			Position:     i,
		})
	}
	return nodes, nil
}

func parseEdges(flowID kernel.FlowID, raw []flow.EdgeInput) []flow.Edge {
	edges := make([]flow.Edge, 0, len(raw))
	for i, in := range raw {
		edges = append(edges, flow.Edge{
			FlowID:       flowID,
			EdgeID:       kernel.EdgeID(in.ID),
			SourceNodeID: in.SourceNodeID,
			TargetNodeID: in.TargetNodeID,
			Position:     i,
		})
	}
	return edges
}

// deriveTriggers construye los triggers del flujo a partir de su nodo
// inicial. Devuelve nil cuando el nodo inicial no produce un tipo de trigger;
// ese flujo solo puede arrancar por un disparo programado.
func deriveTriggers(flowID kernel.FlowID, nodes []flow.Node) []flow.Trigger {
	var start *flow.Node
	for i := range nodes {
		if nodes[i].IsStartNode() {
			start = &nodes[i]
			break
		}
	}
	if start == nil {
		return nil
	}

	var (
		triggerType flow.TriggerType
		values      []string
	)
	switch start.Type {
	case flow.NodeTypeTriggerKeyword:
		cfg, err := flow.ExtractTriggerKeywordConfig(start.Data)
		if err != nil {
			return nil
		}
		triggerType = flow.TriggerTypeKeyword
		values = cfg.TriggerKeywords
	case flow.NodeTypeTriggerTemplate:
		cfg, err := flow.ExtractTriggerTemplateConfig(start.Data)
		if err != nil {
			return nil
		}
		triggerType = flow.TriggerTypeTemplate
		values = cfg.TriggerValues()
	default:
		return nil
	}

	return []flow.Trigger{{
		ID:     kernel.NewTriggerID(),
		FlowID: flowID,
		NodeID: start.NodeID,
		Type:   triggerType,
		Values: values,
	}}
}
