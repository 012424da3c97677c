package channelapi

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// NodeDispatcher forwards node processing requests to channel services
type NodeDispatcher interface {
	Dispatch(ctx context.Context, channel string, req engine.ProcessNodeRequest) (*engine.ProcessNodeResponse, error)
	SupportedChannels() []string
	EndpointFor(channel string) (string, bool)
}

// NodeProxyHandler expone el router interno hacia los servicios de canal.
// La lógica de flujo lo llama para pedir envíos específicos de cada canal.
type NodeProxyHandler struct {
	dispatcher NodeDispatcher
	settings   flow.FlowSettingsRepository
}

func NewNodeProxyHandler(dispatcher NodeDispatcher, settings flow.FlowSettingsRepository) *NodeProxyHandler {
	return &NodeProxyHandler{
		dispatcher: dispatcher,
		settings:   settings,
	}
}

func (h *NodeProxyHandler) RegisterRoutes(app *fiber.App) {
	node := app.Group("/agentflow/node")

	node.Post("/process", h.ProcessNode)
	node.Get("/channels", h.GetSupportedChannels)
}

// ProcessNode recibe el request de la lógica de flujo, decide qué servicio de
// canal atiende según request.channel y reenvía tal cual.
// POST /agentflow/node/process
func (h *NodeProxyHandler) ProcessNode(c *fiber.Ctx) error {
	var req engine.ProcessNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	h.enrichEmailNode(c.Context(), &req)

	log.Printf("📡 Forwarding node processing request to %s service", req.Channel)

	resp, err := h.dispatcher.Dispatch(c.Context(), req.Channel, req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// enrichEmailNode completa el source email de un nodo send_email_template
// desde flow settings cuando el nodo no lo trae embebido.
func (h *NodeProxyHandler) enrichEmailNode(ctx context.Context, req *engine.ProcessNodeRequest) {
	if h.settings == nil || req.NextNodeData == nil || req.NextNodeID == "" {
		return
	}
	typ, _ := req.NextNodeData["type"].(string)
	if flow.NodeType(typ) != flow.NodeTypeSendEmailTemplate {
		return
	}
	cfg, err := flow.ExtractSendEmailTemplateConfig(req.NextNodeData)
	if err != nil || cfg.ConfiguredSourceEmail() != "" {
		return
	}

	settings, err := h.settings.FindByFlowAndNode(ctx, req.FlowID, kernel.NodeID(req.NextNodeID))
	if err != nil || settings == nil || settings.Email == nil || settings.Email.SourceEmail == "" {
		log.Printf("⚠️  [NODE_PROXY] No source email in flow settings for flow %s node %s, downstream uses its default", req.FlowID, req.NextNodeID)
		return
	}
	req.NextNodeData["source_email"] = settings.Email.SourceEmail
	log.Printf("📧 [NODE_PROXY] Injected source email from flow settings for node %s", req.NextNodeID)
}

// GetSupportedChannels lista los canales configurados y sus endpoints
// GET /agentflow/node/channels
func (h *NodeProxyHandler) GetSupportedChannels(c *fiber.Ctx) error {
	infos := make([]channels.ChannelInfo, 0)
	for _, name := range h.dispatcher.SupportedChannels() {
		endpoint, _ := h.dispatcher.EndpointFor(name)
		infos = append(infos, channels.ChannelInfo{
			Name:        name,
			Endpoint:    endpoint,
			Description: channels.DescriptionFor(name),
		})
	}
	return c.JSON(channels.SupportedChannelsResponse{Channels: infos})
}
