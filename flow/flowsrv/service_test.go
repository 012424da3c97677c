package flowsrv

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fakes
// ============================================================================

type savedGraph struct {
	flow     flow.Flow
	nodes    []flow.Node
	edges    []flow.Edge
	triggers []flow.Trigger
}

type statusChange struct {
	flowID kernel.FlowID
	status flow.FlowStatus
}

type fakeFlowStore struct {
	flows    map[kernel.FlowID]*flow.Flow
	nodes    []flow.Node
	edges    []flow.Edge
	triggers []flow.Trigger

	savedGraphs      []savedGraph
	updated          []flow.Flow
	replacedNodes    [][]flow.Node
	replacedEdges    [][]flow.Edge
	replacedTriggers [][]flow.Trigger
	statusChanges    []statusChange
	listRequests     []flow.FlowListRequest
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{flows: make(map[kernel.FlowID]*flow.Flow)}
}

func (f *fakeFlowStore) Create(ctx context.Context, fl flow.Flow) error {
	f.flows[fl.ID] = &fl
	return nil
}

func (f *fakeFlowStore) FindByID(ctx context.Context, id kernel.FlowID) (*flow.Flow, error) {
	fl, ok := f.flows[id]
	if !ok {
		return nil, errx.New("flow not found", errx.TypeNotFound)
	}
	cp := *fl
	return &cp, nil
}

func (f *fakeFlowStore) Update(ctx context.Context, fl flow.Flow) error {
	f.updated = append(f.updated, fl)
	f.flows[fl.ID] = &fl
	return nil
}

func (f *fakeFlowStore) Delete(ctx context.Context, id kernel.FlowID) error {
	delete(f.flows, id)
	return nil
}

func (f *fakeFlowStore) UpdateStatus(ctx context.Context, id kernel.FlowID, status flow.FlowStatus) error {
	f.statusChanges = append(f.statusChanges, statusChange{id, status})
	if fl, ok := f.flows[id]; ok {
		fl.Status = status
	}
	return nil
}

func (f *fakeFlowStore) List(ctx context.Context, req flow.FlowListRequest) (flow.FlowListResponse, error) {
	f.listRequests = append(f.listRequests, req)
	return flow.FlowListResponse{}, nil
}

func (f *fakeFlowStore) ReplaceNodes(ctx context.Context, flowID kernel.FlowID, nodes []flow.Node) error {
	f.replacedNodes = append(f.replacedNodes, nodes)
	f.nodes = nodes
	return nil
}

func (f *fakeFlowStore) ReplaceEdges(ctx context.Context, flowID kernel.FlowID, edges []flow.Edge) error {
	f.replacedEdges = append(f.replacedEdges, edges)
	f.edges = edges
	return nil
}

func (f *fakeFlowStore) ReplaceTriggers(ctx context.Context, flowID kernel.FlowID, triggers []flow.Trigger) error {
	f.replacedTriggers = append(f.replacedTriggers, triggers)
	f.triggers = triggers
	return nil
}

func (f *fakeFlowStore) SaveGraph(ctx context.Context, fl flow.Flow, nodes []flow.Node, edges []flow.Edge, triggers []flow.Trigger) error {
	f.savedGraphs = append(f.savedGraphs, savedGraph{fl, nodes, edges, triggers})
	f.flows[fl.ID] = &fl
	f.nodes = nodes
	f.edges = edges
	f.triggers = triggers
	return nil
}

func (f *fakeFlowStore) FindNodes(ctx context.Context, flowID kernel.FlowID) ([]flow.Node, error) {
	return f.nodes, nil
}

func (f *fakeFlowStore) FindNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.Node, error) {
	for i := range f.nodes {
		if f.nodes[i].NodeID == nodeID {
			return &f.nodes[i], nil
		}
	}
	return nil, errx.New("node not found", errx.TypeNotFound)
}

func (f *fakeFlowStore) FindEdges(ctx context.Context, flowID kernel.FlowID) ([]flow.Edge, error) {
	return f.edges, nil
}

func (f *fakeFlowStore) FindTriggers(ctx context.Context, flowID kernel.FlowID) ([]flow.Trigger, error) {
	return f.triggers, nil
}

func (f *fakeFlowStore) FindTriggersByBrand(ctx context.Context, brandID int64) ([]flow.Trigger, error) {
	return f.triggers, nil
}

var _ flow.FlowRepository = (*fakeFlowStore)(nil)

type fakeNodeDetails struct {
	details []flow.NodeDetail
}

func (f *fakeNodeDetails) Seed(ctx context.Context, details []flow.NodeDetail) error {
	f.details = details
	return nil
}

func (f *fakeNodeDetails) FindAll(ctx context.Context) ([]flow.NodeDetail, error) {
	return f.details, nil
}

func (f *fakeNodeDetails) FindByNodeID(ctx context.Context, nodeID flow.NodeType) (*flow.NodeDetail, error) {
	for i := range f.details {
		if f.details[i].NodeID == nodeID {
			return &f.details[i], nil
		}
	}
	return nil, errx.New("node detail not found", errx.TypeNotFound)
}

func (f *fakeNodeDetails) FindByCategory(ctx context.Context, category flow.NodeCategory) ([]flow.NodeDetail, error) {
	var out []flow.NodeDetail
	for i := range f.details {
		if f.details[i].Category == category {
			out = append(out, f.details[i])
		}
	}
	return out, nil
}

var _ flow.NodeDetailRepository = (*fakeNodeDetails)(nil)

type fakeFlowSettings struct {
	upserted []flow.FlowSettings
}

func (f *fakeFlowSettings) Upsert(ctx context.Context, s flow.FlowSettings) error {
	f.upserted = append(f.upserted, s)
	return nil
}

func (f *fakeFlowSettings) FindByFlowAndNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.FlowSettings, error) {
	for i := range f.upserted {
		if f.upserted[i].FlowID == flowID && f.upserted[i].NodeID == nodeID {
			return &f.upserted[i], nil
		}
	}
	return nil, errx.New("flow settings not found", errx.TypeNotFound)
}

var _ flow.FlowSettingsRepository = (*fakeFlowSettings)(nil)

type fakeSchedules struct {
	schedules map[kernel.ScheduleID]*engine.FlowSchedule
	created   []engine.FlowSchedule
	deleted   []kernel.ScheduleID
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{schedules: make(map[kernel.ScheduleID]*engine.FlowSchedule)}
}

func (f *fakeSchedules) Create(ctx context.Context, s engine.FlowSchedule) error {
	f.created = append(f.created, s)
	f.schedules[s.ID] = &s
	return nil
}

func (f *fakeSchedules) FindByID(ctx context.Context, id kernel.ScheduleID) (*engine.FlowSchedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, errx.New("schedule not found", errx.TypeNotFound)
	}
	return s, nil
}

func (f *fakeSchedules) FindByFlow(ctx context.Context, flowID kernel.FlowID) ([]*engine.FlowSchedule, error) {
	var out []*engine.FlowSchedule
	for _, s := range f.schedules {
		if s.FlowID == flowID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) FindDue(ctx context.Context, now time.Time) ([]*engine.FlowSchedule, error) {
	return nil, nil
}

func (f *fakeSchedules) Update(ctx context.Context, s engine.FlowSchedule) error {
	f.schedules[s.ID] = &s
	return nil
}

func (f *fakeSchedules) Delete(ctx context.Context, id kernel.ScheduleID) error {
	f.deleted = append(f.deleted, id)
	delete(f.schedules, id)
	return nil
}

var _ engine.FlowScheduleRepository = (*fakeSchedules)(nil)

// ============================================================================
// Fixture
// ============================================================================

type serviceFixture struct {
	svc       *Service
	store     *fakeFlowStore
	schedules *fakeSchedules
}

func newServiceFixture() *serviceFixture {
	store := newFakeFlowStore()
	schedules := newFakeSchedules()
	svc := NewService(store, &fakeNodeDetails{}, &fakeFlowSettings{}, schedules, 10)
	return &serviceFixture{svc: svc, store: store, schedules: schedules}
}

func (fx *serviceFixture) seedFlow(id string, status flow.FlowStatus) *flow.Flow {
	f := &flow.Flow{
		ID:        kernel.FlowID(id),
		Name:      id,
		Status:    status,
		BrandID:   7,
		AccountID: 3,
	}
	fx.store.flows[f.ID] = f
	return f
}

func rawNode(id, typ string, extra map[string]any) map[string]any {
	doc := map[string]any{"id": id, "type": typ}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func keywordStart(id, keyword string) map[string]any {
	return rawNode(id, "trigger_keyword", map[string]any{
		"isStartNode":     true,
		"triggerKeywords": []any{keyword},
	})
}

// ============================================================================
// Flow CRUD
// ============================================================================

func TestService_CreateFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("valid graph persists flow, nodes, edges and derived trigger", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			Name: "Welcome journey",
			FlowNodes: []map[string]any{
				keywordStart("start", "hola"),
				rawNode("m1", "message", map[string]any{"flowNodeType": "flowMessage"}),
			},
			FlowEdges: []flow.EdgeInput{{ID: "e1", SourceNodeID: "start", TargetNodeID: "m1"}},
		}

		f, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.NoError(t, err)
		assert.Equal(t, flow.FlowStatusDraft, f.Status, "flows are born unpublished")
		assert.Equal(t, int64(7), f.BrandID)
		assert.Equal(t, int64(3), f.AccountID)
		assert.False(t, f.ID.IsEmpty())

		require.Len(t, fx.store.savedGraphs, 1)
		saved := fx.store.savedGraphs[0]

		require.Len(t, saved.nodes, 2)
		assert.Equal(t, kernel.NodeID("start"), saved.nodes[0].NodeID)
		assert.Equal(t, flow.NodeTypeTriggerKeyword, saved.nodes[0].Type)
		assert.Equal(t, 0, saved.nodes[0].Position)
		assert.Equal(t, "flowMessage", saved.nodes[1].FlowNodeType)
		assert.Equal(t, req.FlowNodes[1], saved.nodes[1].Data, "the raw builder document is kept as node data")

		require.Len(t, saved.edges, 1)
		assert.Equal(t, f.ID, saved.edges[0].FlowID)
		assert.Equal(t, "start", saved.edges[0].SourceNodeID)

		require.Len(t, saved.triggers, 1)
		assert.Equal(t, flow.TriggerTypeKeyword, saved.triggers[0].Type)
		assert.Equal(t, kernel.NodeID("start"), saved.triggers[0].NodeID)
		assert.Equal(t, []string{"hola"}, saved.triggers[0].Values)
	})

	t.Run("builder supplied id is kept", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			ID:        "flow-builder-1",
			Name:      "Reuses id",
			FlowNodes: []map[string]any{keywordStart("start", "hola")},
		}

		f, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.NoError(t, err)
		assert.Equal(t, kernel.FlowID("flow-builder-1"), f.ID)
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			Name:      "   ",
			FlowNodes: []map[string]any{keywordStart("start", "hola")},
		}

		_, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
		assert.Empty(t, fx.store.savedGraphs)
	})

	t.Run("node without id is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			Name:      "Broken",
			FlowNodes: []map[string]any{{"type": "message"}},
		}

		_, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
	})

	t.Run("edge to an unknown node is rejected before persisting", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			Name:      "Broken graph",
			FlowNodes: []map[string]any{keywordStart("start", "hola")},
			FlowEdges: []flow.EdgeInput{{ID: "e1", SourceNodeID: "start", TargetNodeID: "ghost"}},
		}

		_, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
		assert.Empty(t, fx.store.savedGraphs)
	})

	t.Run("flow without a trigger start node saves no triggers", func(t *testing.T) {
		fx := newServiceFixture()
		req := flow.CreateFlowRequest{
			Name: "Scheduled only",
			FlowNodes: []map[string]any{
				rawNode("m1", "message", nil),
				rawNode("m2", "message", nil),
			},
			FlowEdges: []flow.EdgeInput{{ID: "e1", SourceNodeID: "m1", TargetNodeID: "m2"}},
		}

		_, err := fx.svc.CreateFlow(ctx, 3, 7, req)

		require.NoError(t, err)
		require.Len(t, fx.store.savedGraphs, 1)
		assert.Empty(t, fx.store.savedGraphs[0].triggers)
	})
}

func TestService_UpdateFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown flow", func(t *testing.T) {
		fx := newServiceFixture()

		_, err := fx.svc.UpdateFlow(ctx, 3, 7, "ghost", flow.UpdateFlowRequest{Name: ptrx.String("New")})

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeNotFound))
	})

	t.Run("flow of another account is denied", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.UpdateFlow(ctx, 99, 7, "flow-1", flow.UpdateFlowRequest{Name: ptrx.String("New")})

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeAuthorization))
		assert.Empty(t, fx.store.updated)
	})

	t.Run("name only update keeps the stored graph", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		fx.store.nodes = []flow.Node{{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}}}

		f, err := fx.svc.UpdateFlow(ctx, 3, 7, "flow-1", flow.UpdateFlowRequest{Name: ptrx.String("Renamed")})

		require.NoError(t, err)
		assert.Equal(t, "Renamed", f.Name)
		require.Len(t, fx.store.updated, 1)
		assert.Empty(t, fx.store.savedGraphs, "partial update never rewrites the graph atomically")
		assert.Empty(t, fx.store.replacedNodes)
	})

	t.Run("full graph update rederives the trigger", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		req := flow.UpdateFlowRequest{
			FlowNodes: &[]map[string]any{
				keywordStart("start", "promo"),
				rawNode("m1", "message", nil),
			},
			FlowEdges: &[]flow.EdgeInput{{ID: "e1", SourceNodeID: "start", TargetNodeID: "m1"}},
		}

		_, err := fx.svc.UpdateFlow(ctx, 3, 7, "flow-1", req)

		require.NoError(t, err)
		require.Len(t, fx.store.savedGraphs, 1)
		require.Len(t, fx.store.savedGraphs[0].triggers, 1)
		assert.Equal(t, []string{"promo"}, fx.store.savedGraphs[0].triggers[0].Values)
	})

	t.Run("graph without trigger start keeps previous triggers", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		previous := flow.Trigger{ID: kernel.NewTriggerID(), FlowID: "flow-1", NodeID: "old-start", Type: flow.TriggerTypeKeyword, Values: []string{"hola"}}
		fx.store.triggers = []flow.Trigger{previous}

		req := flow.UpdateFlowRequest{
			FlowNodes: &[]map[string]any{rawNode("m1", "message", nil), rawNode("m2", "message", nil)},
			FlowEdges: &[]flow.EdgeInput{{ID: "e1", SourceNodeID: "m1", TargetNodeID: "m2"}},
		}

		_, err := fx.svc.UpdateFlow(ctx, 3, 7, "flow-1", req)

		require.NoError(t, err)
		require.Len(t, fx.store.savedGraphs, 1)
		require.Len(t, fx.store.savedGraphs[0].triggers, 1)
		assert.Equal(t, previous.ID, fx.store.savedGraphs[0].triggers[0].ID)
	})

	t.Run("nodes alone go through replace and rederive triggers", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		req := flow.UpdateFlowRequest{
			FlowNodes: &[]map[string]any{keywordStart("start", "nuevo")},
		}

		_, err := fx.svc.UpdateFlow(ctx, 3, 7, "flow-1", req)

		require.NoError(t, err)
		assert.Empty(t, fx.store.savedGraphs)
		require.Len(t, fx.store.replacedNodes, 1)
		require.Len(t, fx.store.replacedTriggers, 1)
		assert.Equal(t, []string{"nuevo"}, fx.store.replacedTriggers[0][0].Values)
	})

	t.Run("invalid combined graph is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		fx.store.nodes = []flow.Node{{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}}}

		// New edges reference a node that neither the request nor the store has
		req := flow.UpdateFlowRequest{
			FlowEdges: &[]flow.EdgeInput{{ID: "e1", SourceNodeID: "m1", TargetNodeID: "ghost"}},
		}

		_, err := fx.svc.UpdateFlow(ctx, 3, 7, "flow-1", req)

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
		assert.Empty(t, fx.store.replacedEdges)
	})
}

func TestService_UpdateFlowStatus(t *testing.T) {
	ctx := context.Background()

	startNode := flow.Node{NodeID: "start", Type: flow.NodeTypeTriggerKeyword, Data: map[string]any{"isStartNode": true, "triggerKeywords": []any{"hola"}}}

	t.Run("publishing requires a start node", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		fx.store.nodes = []flow.Node{{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}}}

		_, err := fx.svc.UpdateFlowStatus(ctx, 3, 7, "flow-1", "published")

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
		assert.Empty(t, fx.store.statusChanges)
	})

	t.Run("publishing with one start node succeeds", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		fx.store.nodes = []flow.Node{startNode}

		f, err := fx.svc.UpdateFlowStatus(ctx, 3, 7, "flow-1", "published")

		require.NoError(t, err)
		assert.Equal(t, flow.FlowStatusPublished, f.Status)
		require.Len(t, fx.store.statusChanges, 1)
		assert.Equal(t, flow.FlowStatusPublished, fx.store.statusChanges[0].status)
	})

	t.Run("two start nodes are rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		second := startNode
		second.NodeID = "start-2"
		fx.store.nodes = []flow.Node{startNode, second}

		_, err := fx.svc.UpdateFlowStatus(ctx, 3, 7, "flow-1", "published")

		require.Error(t, err)
		assert.Empty(t, fx.store.statusChanges)
	})

	t.Run("stop maps to the stopped status without graph checks", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusPublished)

		f, err := fx.svc.UpdateFlowStatus(ctx, 3, 7, "flow-1", "stop")

		require.NoError(t, err)
		assert.Equal(t, flow.FlowStatusStopped, f.Status)
		require.Len(t, fx.store.statusChanges, 1)
		assert.Equal(t, flow.FlowStatusStopped, fx.store.statusChanges[0].status)
	})

	t.Run("other status values are rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusPublished)

		_, err := fx.svc.UpdateFlowStatus(ctx, 3, 7, "flow-1", "draft")

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeValidation))
	})

	t.Run("foreign brand is denied", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.UpdateFlowStatus(ctx, 3, 99, "flow-1", "stop")

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeAuthorization))
	})
}

func TestService_ListFlows(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.svc.ListFlows(context.Background(), 3, 7, storex.PaginationOptions{}, nil)

	require.NoError(t, err)
	require.Len(t, fx.store.listRequests, 1)
	req := fx.store.listRequests[0]
	assert.Equal(t, 1, req.Page, "zero page falls back to the first")
	assert.Equal(t, defaultPageSize, req.PageSize)
	assert.Equal(t, int64(7), req.BrandID)
	require.NotNil(t, req.AccountID)
	assert.Equal(t, int64(3), *req.AccountID)
}

// ============================================================================
// Schedules
// ============================================================================

func TestService_CreateSchedule(t *testing.T) {
	ctx := context.Background()

	scheduleReq := func(mutate func(*engine.CreateScheduleRequest)) engine.CreateScheduleRequest {
		req := engine.CreateScheduleRequest{
			FlowID:            "flow-1",
			ScheduleType:      engine.ScheduleTypeCron,
			CronExpression:    ptrx.String("0 9 * * *"),
			Channel:           "whatsapp",
			ChannelAccountID:  "biz-555",
			TargetIdentifiers: []string{"+51999"},
		}
		if mutate != nil {
			mutate(&req)
		}
		return req
	}

	t.Run("cron schedule computes the first run", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		s, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(nil))

		require.NoError(t, err)
		assert.True(t, s.IsActive)
		assert.Equal(t, "UTC", s.Timezone, "empty timezone defaults to UTC")
		require.NotNil(t, s.NextRunAt)
		assert.True(t, s.NextRunAt.After(time.Now().Add(-time.Minute)))
		require.Len(t, fx.schedules.created, 1)
	})

	t.Run("cron requires an expression", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.CronExpression = nil
		}))

		require.Error(t, err)
		assert.Empty(t, fx.schedules.created)
	})

	t.Run("malformed cron expression is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.CronExpression = ptrx.String("every tuesday maybe")
		}))

		require.Error(t, err)
	})

	t.Run("unknown timezone is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.Timezone = "Mars/Olympus"
		}))

		require.Error(t, err)
	})

	t.Run("interval schedule runs after the interval", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		s, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.ScheduleType = engine.ScheduleTypeInterval
			r.CronExpression = nil
			r.IntervalSeconds = ptrx.Int(3600)
		}))

		require.NoError(t, err)
		require.NotNil(t, s.NextRunAt)
		assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *s.NextRunAt, 5*time.Second)
	})

	t.Run("interval must be positive", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.ScheduleType = engine.ScheduleTypeInterval
			r.CronExpression = nil
			r.IntervalSeconds = ptrx.Int(0)
		}))

		require.Error(t, err)
	})

	t.Run("one time schedule runs at the requested instant", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)
		at := time.Now().Add(48 * time.Hour)

		s, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.ScheduleType = engine.ScheduleTypeOnce
			r.CronExpression = nil
			r.ScheduledAt = &at
		}))

		require.NoError(t, err)
		require.NotNil(t, s.NextRunAt)
		assert.True(t, s.NextRunAt.Equal(at.UTC()))
	})

	t.Run("one time schedule requires an instant", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.ScheduleType = engine.ScheduleTypeOnce
			r.CronExpression = nil
		}))

		require.Error(t, err)
	})

	t.Run("schedule without targets is rejected", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 7, scheduleReq(func(r *engine.CreateScheduleRequest) {
			r.TargetIdentifiers = nil
		}))

		require.Error(t, err)
		assert.Empty(t, fx.schedules.created)
	})

	t.Run("flow of another brand is denied", func(t *testing.T) {
		fx := newServiceFixture()
		fx.seedFlow("flow-1", flow.FlowStatusDraft)

		_, err := fx.svc.CreateSchedule(ctx, 3, 99, scheduleReq(nil))

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeAuthorization))
	})
}

func TestService_DeleteSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes a schedule", func(t *testing.T) {
		fx := newServiceFixture()
		s := engine.FlowSchedule{ID: kernel.NewScheduleID(), BrandID: 7, AccountID: 3, FlowID: "flow-1"}
		fx.schedules.schedules[s.ID] = &s

		err := fx.svc.DeleteSchedule(ctx, 3, 7, s.ID)

		require.NoError(t, err)
		require.Len(t, fx.schedules.deleted, 1)
		assert.Equal(t, s.ID, fx.schedules.deleted[0])
	})

	t.Run("foreign schedule is denied", func(t *testing.T) {
		fx := newServiceFixture()
		s := engine.FlowSchedule{ID: kernel.NewScheduleID(), BrandID: 99, AccountID: 3, FlowID: "flow-1"}
		fx.schedules.schedules[s.ID] = &s

		err := fx.svc.DeleteSchedule(ctx, 3, 7, s.ID)

		require.Error(t, err)
		assert.Empty(t, fx.schedules.deleted)
	})

	t.Run("missing schedule", func(t *testing.T) {
		fx := newServiceFixture()

		err := fx.svc.DeleteSchedule(ctx, 3, 7, kernel.NewScheduleID())

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeNotFound))
	})
}

// ============================================================================
// Trigger derivation
// ============================================================================

func TestDeriveTriggers(t *testing.T) {
	t.Run("keyword start node", func(t *testing.T) {
		nodes := []flow.Node{
			{NodeID: "start", Type: flow.NodeTypeTriggerKeyword, Data: map[string]any{"isStartNode": true, "triggerKeywords": []any{"hola", "hi"}}},
			{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}},
		}

		triggers := deriveTriggers("flow-1", nodes)

		require.Len(t, triggers, 1)
		assert.Equal(t, flow.TriggerTypeKeyword, triggers[0].Type)
		assert.Equal(t, kernel.NodeID("start"), triggers[0].NodeID)
		assert.Equal(t, []string{"hola", "hi"}, triggers[0].Values)
	})

	t.Run("template start node collects expected answers", func(t *testing.T) {
		nodes := []flow.Node{
			{NodeID: "start", Type: flow.NodeTypeTriggerTemplate, Data: map[string]any{
				"isStartNode": true,
				"expectedAnswers": []any{
					map[string]any{"id": "a1", "expectedInput": "CONFIRM"},
					map[string]any{"id": "a2", "expectedInput": "CANCEL"},
				},
			}},
		}

		triggers := deriveTriggers("flow-1", nodes)

		require.Len(t, triggers, 1)
		assert.Equal(t, flow.TriggerTypeTemplate, triggers[0].Type)
		assert.Equal(t, []string{"CONFIRM", "CANCEL"}, triggers[0].Values)
	})

	t.Run("no start node yields none", func(t *testing.T) {
		nodes := []flow.Node{{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}}}

		assert.Nil(t, deriveTriggers("flow-1", nodes))
	})

	t.Run("non trigger start node yields none", func(t *testing.T) {
		nodes := []flow.Node{{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{"isStartNode": true}}}

		assert.Nil(t, deriveTriggers("flow-1", nodes))
	})

	t.Run("keyword start without keywords yields none", func(t *testing.T) {
		nodes := []flow.Node{{NodeID: "start", Type: flow.NodeTypeTriggerKeyword, Data: map[string]any{"isStartNode": true}}}

		assert.Nil(t, deriveTriggers("flow-1", nodes))
	})
}

// ============================================================================
// Graph loader
// ============================================================================

func TestLoader_Load(t *testing.T) {
	t.Run("assembles the indexed graph", func(t *testing.T) {
		store := newFakeFlowStore()
		store.flows["flow-1"] = &flow.Flow{ID: "flow-1", Status: flow.FlowStatusPublished, BrandID: 7, AccountID: 3}
		store.nodes = []flow.Node{
			{NodeID: "start", Type: flow.NodeTypeTriggerKeyword, Data: map[string]any{"isStartNode": true}},
			{NodeID: "m1", Type: flow.NodeTypeMessage, Data: map[string]any{}},
		}
		store.edges = []flow.Edge{{EdgeID: "e1", SourceNodeID: "start", TargetNodeID: "m1"}}

		g, err := NewLoader(store).Load(context.Background(), "flow-1")

		require.NoError(t, err)
		require.NotNil(t, g.Flow)
		assert.True(t, g.Flow.IsPublished())
		require.NotNil(t, g.NodeByID("m1"))
		require.NotNil(t, g.FirstEdgeFrom("start"))
		assert.Equal(t, "m1", g.FirstEdgeFrom("start").TargetNodeID)
	})

	t.Run("missing flow", func(t *testing.T) {
		store := newFakeFlowStore()

		_, err := NewLoader(store).Load(context.Background(), "ghost")

		require.Error(t, err)
		assert.True(t, errx.IsType(err, errx.TypeNotFound))
	})
}
