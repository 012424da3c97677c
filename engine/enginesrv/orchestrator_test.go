package enginesrv

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/engine/flowwalker"
	"github.com/agentcord/agentflow/engine/nodeexec"
	"github.com/agentcord/agentflow/engine/recorder"
	"github.com/agentcord/agentflow/engine/replyvalidator"
	"github.com/agentcord/agentflow/engine/triggermatch"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeUserStates struct {
	users          []*engine.UserState
	saved          int
	parkCalls      int
	exitCalls      int
	delayDataSets  int
	delayDataClear int
}

func (f *fakeUserStates) byID(id kernel.UserStateID) *engine.UserState {
	for _, u := range f.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUserStates) byIdentity(identifier string) *engine.UserState {
	for _, u := range f.users {
		if u.UserIdentifier == identifier {
			return u
		}
	}
	return nil
}

func (f *fakeUserStates) Save(ctx context.Context, state engine.UserState) error {
	f.saved++
	f.users = append(f.users, &state)
	return nil
}

func (f *fakeUserStates) FindByID(ctx context.Context, id kernel.UserStateID) (*engine.UserState, error) {
	return f.byID(id), nil
}

func (f *fakeUserStates) FindByIdentity(ctx context.Context, userIdentifier string, brandID int64) (*engine.UserState, error) {
	for _, u := range f.users {
		if u.UserIdentifier == userIdentifier && u.BrandID == brandID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStates) UpdateAutomationState(ctx context.Context, id kernel.UserStateID, inAutomation bool, flowID *kernel.FlowID, nodeID *kernel.NodeID) error {
	u := f.byID(id)
	if u == nil {
		return errx.New("user not found", errx.TypeNotFound)
	}
	if inAutomation {
		f.parkCalls++
	} else {
		f.exitCalls++
		u.LastFlowID = u.CurrentFlowID
	}
	u.IsInAutomation = inAutomation
	u.CurrentFlowID = flowID
	u.CurrentNodeID = nodeID
	return nil
}

func (f *fakeUserStates) SetDelayNodeData(ctx context.Context, id kernel.UserStateID, data map[string]any) error {
	f.delayDataSets++
	if u := f.byID(id); u != nil {
		u.DelayNodeData = data
	}
	return nil
}

func (f *fakeUserStates) ClearDelayNodeData(ctx context.Context, id kernel.UserStateID) error {
	f.delayDataClear++
	if u := f.byID(id); u != nil {
		u.DelayNodeData = nil
	}
	return nil
}

func (f *fakeUserStates) RecordValidationFailure(ctx context.Context, id kernel.UserStateID, message string) (int, error) {
	u := f.byID(id)
	if u == nil {
		return 0, errx.New("user not found", errx.TypeNotFound)
	}
	u.ValidationFailed = true
	u.ValidationFailureCount++
	u.ValidationFailureMessage = message
	return u.ValidationFailureCount, nil
}

func (f *fakeUserStates) ResetValidation(ctx context.Context, id kernel.UserStateID) error {
	if u := f.byID(id); u != nil {
		u.ValidationFailed = false
		u.ValidationFailureCount = 0
		u.ValidationFailureMessage = ""
	}
	return nil
}

func (f *fakeUserStates) List(ctx context.Context, req engine.UserStateListRequest) (engine.UserStateListResponse, error) {
	return engine.UserStateListResponse{}, nil
}

var _ engine.UserStateRepository = (*fakeUserStates)(nil)

type fakeDelays struct {
	created   []engine.Delay
	processed []kernel.DelayID
	active    *engine.Delay
}

func (f *fakeDelays) Create(ctx context.Context, delay engine.Delay) error {
	f.created = append(f.created, delay)
	return nil
}

func (f *fakeDelays) FindByID(ctx context.Context, id kernel.DelayID) (*engine.Delay, error) {
	return nil, errx.New("delay not found", errx.TypeNotFound)
}

func (f *fakeDelays) FindDue(ctx context.Context, now time.Time, limit int) ([]*engine.Delay, error) {
	return nil, nil
}

func (f *fakeDelays) FindActive(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID, nodeID kernel.NodeID) (*engine.Delay, error) {
	if f.active == nil {
		return nil, errx.New("delay not found", errx.TypeNotFound)
	}
	return f.active, nil
}

func (f *fakeDelays) MarkProcessed(ctx context.Context, id kernel.DelayID) error {
	f.processed = append(f.processed, id)
	return nil
}

var _ engine.DelayRepository = (*fakeDelays)(nil)

type fakeGraphLoader struct {
	graphs map[kernel.FlowID]*flow.Graph
}

func (f *fakeGraphLoader) Load(ctx context.Context, flowID kernel.FlowID) (*flow.Graph, error) {
	g, ok := f.graphs[flowID]
	if !ok {
		return nil, errx.New("flow not found", errx.TypeNotFound)
	}
	return g, nil
}

var _ flow.GraphLoader = (*fakeGraphLoader)(nil)

type fakeNodeClient struct {
	dispatched []engine.ProcessNodeRequest
}

func (f *fakeNodeClient) Dispatch(ctx context.Context, channel string, req engine.ProcessNodeRequest) (*engine.ProcessNodeResponse, error) {
	f.dispatched = append(f.dispatched, req)
	return &engine.ProcessNodeResponse{Status: engine.ProcessStatusSuccess}, nil
}

var _ engine.NodeProcessClient = (*fakeNodeClient)(nil)

type fakeTransactions struct {
	saved []engine.UserTransaction
}

func (f *fakeTransactions) Save(ctx context.Context, tx engine.UserTransaction) error {
	f.saved = append(f.saved, tx)
	return nil
}

func (f *fakeTransactions) List(ctx context.Context, req engine.TransactionListRequest) (engine.TransactionListResponse, error) {
	return engine.TransactionListResponse{}, nil
}

var _ engine.TransactionRepository = (*fakeTransactions)(nil)

type fakeContexts struct {
	vars []engine.FlowUserContext
}

func (f *fakeContexts) UpsertVariable(ctx context.Context, fuc engine.FlowUserContext) error {
	f.vars = append(f.vars, fuc)
	return nil
}

func (f *fakeContexts) FindAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) ([]engine.FlowUserContext, error) {
	return f.vars, nil
}

func (f *fakeContexts) DeleteAll(ctx context.Context, userIdentifier string, brandID int64, flowID kernel.FlowID) error {
	return nil
}

var _ engine.FlowUserContextRepository = (*fakeContexts)(nil)

// fakeFlowStore backs the trigger matcher with in-memory flows and triggers.
type fakeFlowStore struct {
	flows    map[kernel.FlowID]*flow.Flow
	triggers []flow.Trigger
}

func (f *fakeFlowStore) Create(ctx context.Context, fl flow.Flow) error { return nil }

func (f *fakeFlowStore) FindByID(ctx context.Context, id kernel.FlowID) (*flow.Flow, error) {
	fl, ok := f.flows[id]
	if !ok {
		return nil, errx.New("flow not found", errx.TypeNotFound)
	}
	return fl, nil
}

func (f *fakeFlowStore) Update(ctx context.Context, fl flow.Flow) error { return nil }

func (f *fakeFlowStore) Delete(ctx context.Context, id kernel.FlowID) error { return nil }

func (f *fakeFlowStore) UpdateStatus(ctx context.Context, id kernel.FlowID, status flow.FlowStatus) error {
	return nil
}

func (f *fakeFlowStore) List(ctx context.Context, req flow.FlowListRequest) (flow.FlowListResponse, error) {
	return flow.FlowListResponse{}, nil
}

func (f *fakeFlowStore) ReplaceNodes(ctx context.Context, flowID kernel.FlowID, nodes []flow.Node) error {
	return nil
}

func (f *fakeFlowStore) ReplaceEdges(ctx context.Context, flowID kernel.FlowID, edges []flow.Edge) error {
	return nil
}

func (f *fakeFlowStore) ReplaceTriggers(ctx context.Context, flowID kernel.FlowID, triggers []flow.Trigger) error {
	return nil
}

func (f *fakeFlowStore) SaveGraph(ctx context.Context, fl flow.Flow, nodes []flow.Node, edges []flow.Edge, triggers []flow.Trigger) error {
	return nil
}

func (f *fakeFlowStore) FindNodes(ctx context.Context, flowID kernel.FlowID) ([]flow.Node, error) {
	return nil, nil
}

func (f *fakeFlowStore) FindNode(ctx context.Context, flowID kernel.FlowID, nodeID kernel.NodeID) (*flow.Node, error) {
	return nil, nil
}

func (f *fakeFlowStore) FindEdges(ctx context.Context, flowID kernel.FlowID) ([]flow.Edge, error) {
	return nil, nil
}

func (f *fakeFlowStore) FindTriggers(ctx context.Context, flowID kernel.FlowID) ([]flow.Trigger, error) {
	return nil, nil
}

func (f *fakeFlowStore) FindTriggersByBrand(ctx context.Context, brandID int64) ([]flow.Trigger, error) {
	return f.triggers, nil
}

var _ flow.FlowRepository = (*fakeFlowStore)(nil)

type fakeLeads struct {
	leadID string
	calls  int
}

func (f *fakeLeads) Resolve(ctx context.Context, brandID, accountID int64, channel, identifier string, detail *engine.UserDetail) (string, error) {
	f.calls++
	return f.leadID, nil
}

var _ engine.LeadResolver = (*fakeLeads)(nil)

// ============================================================================
// Fixture
// ============================================================================

type orchestratorFixture struct {
	orch         *Orchestrator
	users        *fakeUserStates
	delays       *fakeDelays
	graphs       *fakeGraphLoader
	store        *fakeFlowStore
	nodeClient   *fakeNodeClient
	transactions *fakeTransactions
	contexts     *fakeContexts
	leads        *fakeLeads
}

func newOrchestratorFixture() *orchestratorFixture {
	fx := &orchestratorFixture{
		users:        &fakeUserStates{},
		delays:       &fakeDelays{},
		graphs:       &fakeGraphLoader{graphs: make(map[kernel.FlowID]*flow.Graph)},
		store:        &fakeFlowStore{flows: make(map[kernel.FlowID]*flow.Flow)},
		nodeClient:   &fakeNodeClient{},
		transactions: &fakeTransactions{},
		contexts:     &fakeContexts{},
		leads:        &fakeLeads{leadID: "lead-1"},
	}

	catalog := flow.NewCatalog(flow.CatalogSeed())
	processor := nodeexec.NewProcessor(
		nodeexec.NewConditionExecutor(fx.contexts),
		nodeexec.NewDelayExecutor(),
	)
	walker := flowwalker.NewWalker(catalog, processor, fx.nodeClient, recorder.NewRecorder(fx.transactions))
	validator := replyvalidator.NewValidator(fx.contexts)
	matcher := triggermatch.NewMatcher(fx.store)

	fx.orch = NewOrchestrator(fx.users, fx.delays, fx.graphs, catalog, walker, validator, matcher, fx.leads)
	return fx
}

// addFlow registers a published flow with its graph and keyword trigger.
func (fx *orchestratorFixture) addFlow(flowID, keyword string, nodes []flow.Node, edges []flow.Edge) *flow.Graph {
	id := kernel.FlowID(flowID)
	f := &flow.Flow{ID: id, Name: flowID, Status: flow.FlowStatusPublished, BrandID: 7, AccountID: 3}
	fx.store.flows[id] = f

	g := flow.NewGraph(f, nodes, edges)
	fx.graphs.graphs[id] = g

	if keyword != "" {
		start := g.StartNode()
		fx.store.triggers = append(fx.store.triggers, flow.Trigger{
			ID:     kernel.NewTriggerID(),
			FlowID: id,
			NodeID: start.NodeID,
			Type:   flow.TriggerTypeKeyword,
			Values: []string{keyword},
		})
	}
	return g
}

// seedUser registers an existing user and returns it for state tweaks.
func (fx *orchestratorFixture) seedUser(identifier string) *engine.UserState {
	u := &engine.UserState{
		ID:               kernel.NewUserStateID(),
		UserIdentifier:   identifier,
		BrandID:          7,
		AccountID:        ptrx.Int64(3),
		Channel:          "whatsapp",
		ChannelAccountID: "biz-555",
	}
	fx.users.users = append(fx.users.users, u)
	return u
}

func (fx *orchestratorFixture) park(u *engine.UserState, flowID, nodeID string) {
	fid := kernel.FlowID(flowID)
	nid := kernel.NodeID(nodeID)
	u.IsInAutomation = true
	u.CurrentFlowID = &fid
	u.CurrentNodeID = &nid
}

func node(id string, nodeType flow.NodeType, data map[string]any) flow.Node {
	if data == nil {
		data = map[string]any{}
	}
	return flow.Node{NodeID: kernel.NodeID(id), Type: nodeType, Data: data}
}

func edge(id, source, target string) flow.Edge {
	return flow.Edge{EdgeID: kernel.EdgeID(id), SourceNodeID: source, TargetNodeID: target}
}

func msgNode(id, text string) flow.Node {
	return node(id, flow.NodeTypeMessage, map[string]any{
		"flowReplies": []any{map[string]any{"flowReplyType": "text", "data": text}},
	})
}

// orderFlow: keyword trigger -> welcome message -> button question; Small
// ends the flow, Large asks a free-text question that captures "name".
func orderFlowNodes() ([]flow.Node, []flow.Edge) {
	nodes := []flow.Node{
		node("start", flow.NodeTypeTriggerKeyword, map[string]any{
			"triggerKeywords": []any{"hola"},
			"isStartNode":     true,
		}),
		msgNode("welcome", "¡Bienvenido!"),
		node("ask-size", flow.NodeTypeButtonQuestion, map[string]any{
			"expectedAnswers": []any{
				map[string]any{"id": "ans-s", "expectedInput": "Small"},
				map[string]any{"id": "ans-l", "expectedInput": "Large"},
			},
			"answerValidation": map[string]any{"failsCount": "2", "fallback": "Pick Small or Large"},
		}),
		node("ask-name", flow.NodeTypeQuestion, map[string]any{
			"flowReplies":       []any{map[string]any{"flowReplyType": "text", "data": "¿Tu nombre?"}},
			"userInputVariable": "name",
		}),
		msgNode("bye", "¡Gracias!"),
	}
	edges := []flow.Edge{
		edge("e1", "start", "welcome"),
		edge("e2", "welcome", "ask-size"),
		edge("e3", "ans-s", "bye"),
		edge("e4", "ans-l", "ask-name"),
		edge("e5", "ask-name", "bye"),
	}
	return nodes, edges
}

func webhook(sender, messageType string) *engine.WebhookRequest {
	return &engine.WebhookRequest{
		Sender:            sender,
		BrandID:           7,
		AccountID:         3,
		ChannelIdentifier: "biz-555",
		MessageType:       messageType,
		Channel:           "whatsapp",
	}
}

func textMsg(text string) *channels.NormalizedMessage {
	return &channels.NormalizedMessage{UserReply: ptrx.String(text)}
}

// ============================================================================
// Scenarios
// ============================================================================

func TestOrchestrator_TriggerMatching(t *testing.T) {
	t.Run("keyword from a new user starts the flow and parks on the question", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("hola, quiero pedir"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.True(t, resp.AutomationTriggered)
		require.NotNil(t, resp.FlowID)
		assert.Equal(t, kernel.FlowID("flow-order"), *resp.FlowID)
		require.NotNil(t, resp.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("start"), *resp.CurrentNodeID)

		// User record was created with its channel detail and lead
		require.Equal(t, 1, fx.users.saved)
		u := fx.users.byIdentity("+51999")
		require.NotNil(t, u)
		require.NotNil(t, u.UserDetail)
		assert.Equal(t, "+51999", u.UserDetail.PhoneNumber)
		assert.Equal(t, "lead-1", u.LeadID)
		assert.Equal(t, 1, fx.leads.calls)

		// Welcome message chained into the button question, then parked
		require.Len(t, fx.nodeClient.dispatched, 2)
		assert.Equal(t, "welcome", fx.nodeClient.dispatched[0].NextNodeID)
		assert.Equal(t, "ask-size", fx.nodeClient.dispatched[1].NextNodeID)

		assert.True(t, u.IsInAutomation)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("ask-size"), *u.CurrentNodeID)
	})

	t.Run("no trigger match leaves the user alone", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("buenas tardes"))

		assert.Equal(t, engine.ResponseStatusNoAutomation, resp.Status)
		assert.False(t, resp.AutomationTriggered)
		assert.Empty(t, fx.nodeClient.dispatched)

		// The user record still gets created for a first contact
		assert.Equal(t, 1, fx.users.saved)
		u := fx.users.byIdentity("+51999")
		require.NotNil(t, u)
		assert.False(t, u.IsInAutomation)
	})

	t.Run("in-automation user skips trigger matching", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")

		// "hola" is the trigger keyword but the user is mid-flow: the reply
		// goes to validation, mismatches and retries the button.
		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("hola"))

		assert.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.False(t, resp.AutomationTriggered)
		assert.Equal(t, 1, u.ValidationFailureCount)
	})
}

func TestOrchestrator_ButtonReplies(t *testing.T) {
	t.Run("matching answer advances to the terminal node and exits", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("small"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "bye", fx.nodeClient.dispatched[0].NextNodeID)

		// bye has no outgoing edge, so the automation ends
		assert.False(t, u.IsInAutomation)
		assert.Nil(t, u.CurrentNodeID)
		require.NotNil(t, u.LastFlowID)
		assert.Equal(t, kernel.FlowID("flow-order"), *u.LastFlowID)
	})

	t.Run("matching answer that leads to a question parks there and resets failures", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")
		u.ValidationFailureCount = 1
		u.ValidationFailed = true

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("Large"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("ask-name"), *u.CurrentNodeID)
		assert.True(t, u.IsInAutomation)
		assert.Equal(t, 0, u.ValidationFailureCount, "good answer resets the failure count")
		assert.False(t, u.ValidationFailed)
	})

	t.Run("mismatch retries the button with the configured fallback", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("medium"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		require.Len(t, fx.nodeClient.dispatched, 1)
		sent := fx.nodeClient.dispatched[0]
		assert.Equal(t, "ask-size", sent.NextNodeID)
		assert.True(t, sent.IsValidationError)
		require.NotNil(t, sent.FallbackMessage)
		assert.Equal(t, "Pick Small or Large", *sent.FallbackMessage)

		assert.Equal(t, 1, u.ValidationFailureCount)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("ask-size"), *u.CurrentNodeID, "user stays parked on the button")
	})

	t.Run("exhausted retries send only the fallback and keep the automation", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")
		u.ValidationFailureCount = 2

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("medium"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.Contains(t, resp.Message, "Validation limit exceeded")

		require.Len(t, fx.nodeClient.dispatched, 1)
		sent := fx.nodeClient.dispatched[0]
		assert.Equal(t, "", sent.NextNodeID, "no node is reprocessed")
		assert.True(t, sent.IsValidationError)

		// Counter and parking stay as they were: a correct answer later
		// still advances the flow.
		assert.Equal(t, 2, u.ValidationFailureCount)
		assert.True(t, u.IsInAutomation)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("ask-size"), *u.CurrentNodeID)
	})

	t.Run("correct answer after exhausted retries still advances", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")
		u.ValidationFailureCount = 5

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("Small"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "bye", fx.nodeClient.dispatched[0].NextNodeID)
		assert.False(t, u.IsInAutomation)
	})
}

func TestOrchestrator_TextQuestions(t *testing.T) {
	t.Run("free text answer saves the variable and moves on", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-name")

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("Ana"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)

		require.Len(t, fx.contexts.vars, 1)
		assert.Equal(t, "name", fx.contexts.vars[0].VariableName)
		assert.Equal(t, "Ana", fx.contexts.vars[0].VariableValue)
		assert.Equal(t, kernel.FlowID("flow-order"), fx.contexts.vars[0].FlowID)

		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "bye", fx.nodeClient.dispatched[0].NextNodeID)
		assert.False(t, u.IsInAutomation)
	})

	t.Run("message without a reply is an error", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-name")

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), &channels.NormalizedMessage{})

		assert.Equal(t, engine.ResponseStatusError, resp.Status)
	})
}

func TestOrchestrator_Conditions(t *testing.T) {
	conditionFlow := func(fx *orchestratorFixture) {
		nodes := []flow.Node{
			node("start", flow.NodeTypeTriggerKeyword, map[string]any{
				"triggerKeywords": []any{"precio"},
				"isStartNode":     true,
			}),
			node("is-vip", flow.NodeTypeCondition, map[string]any{
				"flowNodeConditions": []any{
					map[string]any{"flowConditionType": "Equal", "variable": "@tier", "value": "vip"},
				},
				"conditionResult": []any{
					map[string]any{"id": "is-vip__true-1"},
					map[string]any{"id": "is-vip__false-1"},
				},
			}),
			msgNode("vip-price", "Precio VIP: 10"),
			msgNode("std-price", "Precio: 20"),
		}
		edges := []flow.Edge{
			edge("e1", "start", "is-vip"),
			edge("e2", "is-vip__true-1", "vip-price"),
			edge("e3", "is-vip__false-1", "std-price"),
		}
		fx.addFlow("flow-price", "precio", nodes, edges)
	}

	t.Run("true branch when the variable matches", func(t *testing.T) {
		fx := newOrchestratorFixture()
		conditionFlow(fx)
		fx.contexts.vars = []engine.FlowUserContext{{VariableName: "@tier", VariableValue: "vip"}}

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("precio"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.True(t, resp.AutomationTriggered)

		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "vip-price", fx.nodeClient.dispatched[0].NextNodeID)

		// Terminal message: user exits right away
		u := fx.users.byIdentity("+51999")
		require.NotNil(t, u)
		assert.False(t, u.IsInAutomation)
	})

	t.Run("false branch when the variable is absent", func(t *testing.T) {
		fx := newOrchestratorFixture()
		conditionFlow(fx)

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("precio"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "std-price", fx.nodeClient.dispatched[0].NextNodeID)
	})
}

func TestOrchestrator_Delays(t *testing.T) {
	delayData := func(interrupt bool) map[string]any {
		return map[string]any{
			"id":             "wait",
			"delayDuration":  "1",
			"delayUnit":      "minutes",
			"delayInterrupt": interrupt,
			"delayResult": []any{
				map[string]any{"id": "wait__interrupted-1"},
				map[string]any{"id": "wait__not_interrupted-1"},
			},
		}
	}

	delayFlow := func(fx *orchestratorFixture, interrupt bool) {
		nodes := []flow.Node{
			node("start", flow.NodeTypeTriggerKeyword, map[string]any{
				"triggerKeywords": []any{"demo"},
				"isStartNode":     true,
			}),
			node("wait", flow.NodeTypeDelay, delayData(interrupt)),
			msgNode("nudge", "¿Sigues ahí?"),
			msgNode("resumed", "Continuemos"),
		}
		edges := []flow.Edge{
			edge("e1", "start", "wait"),
			edge("e2", "wait__interrupted-1", "resumed"),
			edge("e3", "wait__not_interrupted-1", "nudge"),
		}
		fx.addFlow("flow-demo", "demo", nodes, edges)
	}

	t.Run("reaching a delay node parks the user and schedules the timer", func(t *testing.T) {
		fx := newOrchestratorFixture()
		delayFlow(fx, false)

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("quiero una demo"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.True(t, resp.AutomationTriggered)

		u := fx.users.byIdentity("+51999")
		require.NotNil(t, u)
		assert.True(t, u.IsInAutomation)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("wait"), *u.CurrentNodeID)
		assert.NotEmpty(t, u.DelayNodeData, "the full delay node is parked on the user")

		require.Len(t, fx.delays.created, 1)
		d := fx.delays.created[0]
		assert.Equal(t, kernel.NodeID("wait"), d.DelayNodeID)
		assert.Equal(t, int64(60), d.WaitTimeSeconds)
		assert.Equal(t, "whatsapp", d.Channel)
		assert.False(t, d.DelayCompletesAt.Before(d.DelayStartedAt))
	})

	t.Run("message during a non-interruptible delay is ignored", func(t *testing.T) {
		fx := newOrchestratorFixture()
		delayFlow(fx, false)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-demo", "wait")
		u.DelayNodeData = delayData(false)

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("hola?"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.Contains(t, resp.Message, "ignored")
		assert.Empty(t, fx.nodeClient.dispatched)
		assert.True(t, u.IsInAutomation, "delay keeps running")
		assert.NotEmpty(t, u.DelayNodeData)
	})

	t.Run("message during an interruptible delay cancels it and takes the interrupted branch", func(t *testing.T) {
		fx := newOrchestratorFixture()
		delayFlow(fx, true)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-demo", "wait")
		u.DelayNodeData = delayData(true)

		pending := &engine.Delay{ID: kernel.NewDelayID(), UserIdentifier: "+51999", BrandID: 7}
		fx.delays.active = pending

		resp := fx.orch.HandleMessage(context.Background(), webhook("+51999", "text"), textMsg("ya volví"))

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.True(t, resp.AutomationTriggered)

		require.Len(t, fx.delays.processed, 1)
		assert.Equal(t, pending.ID, fx.delays.processed[0], "pending timer cancelled")

		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "resumed", fx.nodeClient.dispatched[0].NextNodeID)

		assert.Empty(t, u.DelayNodeData, "delay data cleared after the interrupt")
		assert.False(t, u.IsInAutomation, "resumed is terminal")
	})

	t.Run("delay completion resumes through the not-interrupted branch", func(t *testing.T) {
		fx := newOrchestratorFixture()
		delayFlow(fx, false)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-demo", "wait")
		u.DelayNodeData = delayData(false)

		req := webhook("delay-system", engine.MessageTypeDelayComplete)
		msg := &channels.NormalizedMessage{UserStateID: "+51999"}

		resp := fx.orch.HandleMessage(context.Background(), req, msg)

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.Contains(t, resp.Message, "flow resumed")

		require.Len(t, fx.nodeClient.dispatched, 1)
		assert.Equal(t, "nudge", fx.nodeClient.dispatched[0].NextNodeID)
		assert.Empty(t, u.DelayNodeData)
		assert.False(t, u.IsInAutomation, "nudge is terminal")
	})

	t.Run("late delay completion without parked data is a no-op", func(t *testing.T) {
		fx := newOrchestratorFixture()
		delayFlow(fx, false)
		u := fx.seedUser("+51999")
		u.IsInAutomation = false

		req := webhook("delay-system", engine.MessageTypeDelayComplete)
		msg := &channels.NormalizedMessage{UserStateID: "+51999"}

		resp := fx.orch.HandleMessage(context.Background(), req, msg)

		assert.Equal(t, engine.ResponseStatusNoAutomation, resp.Status)
		assert.Empty(t, fx.nodeClient.dispatched)
	})
}

func TestOrchestrator_ScheduledTriggers(t *testing.T) {
	t.Run("scheduled trigger starts the flow directly", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)

		req := webhook("+51999", engine.MessageTypeScheduledTrigger)
		msg := &channels.NormalizedMessage{FlowID: "flow-order"}

		resp := fx.orch.HandleMessage(context.Background(), req, msg)

		require.Equal(t, engine.ResponseStatusSuccess, resp.Status)
		assert.True(t, resp.AutomationTriggered)
		require.Len(t, fx.nodeClient.dispatched, 2)
		assert.Equal(t, "welcome", fx.nodeClient.dispatched[0].NextNodeID)

		u := fx.users.byIdentity("+51999")
		require.NotNil(t, u)
		assert.True(t, u.IsInAutomation)
	})

	t.Run("scheduled trigger does not touch a user mid-automation", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		u := fx.seedUser("+51999")
		fx.park(u, "flow-order", "ask-size")

		req := webhook("+51999", engine.MessageTypeScheduledTrigger)
		msg := &channels.NormalizedMessage{FlowID: "flow-order"}

		resp := fx.orch.HandleMessage(context.Background(), req, msg)

		assert.Equal(t, engine.ResponseStatusNoAutomation, resp.Status)
		assert.Empty(t, fx.nodeClient.dispatched)
		require.NotNil(t, u.CurrentNodeID)
		assert.Equal(t, kernel.NodeID("ask-size"), *u.CurrentNodeID)
	})

	t.Run("scheduled trigger skips unpublished flows", func(t *testing.T) {
		fx := newOrchestratorFixture()
		nodes, edges := orderFlowNodes()
		fx.addFlow("flow-order", "hola", nodes, edges)
		fx.store.flows[kernel.FlowID("flow-order")].Status = flow.FlowStatusStopped

		req := webhook("+51999", engine.MessageTypeScheduledTrigger)
		msg := &channels.NormalizedMessage{FlowID: "flow-order"}

		resp := fx.orch.HandleMessage(context.Background(), req, msg)

		assert.Equal(t, engine.ResponseStatusNoAutomation, resp.Status)
		assert.Empty(t, fx.nodeClient.dispatched)
	})
}
