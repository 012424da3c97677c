package testapi

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/gofiber/fiber/v2"

	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// TestHandler maneja las peticiones HTTP para testing. Sintetiza webhooks
// como si vinieran de un servicio de canal y los mete por el intake real,
// así un curl alcanza para recorrer un flujo completo sin levantar WhatsApp.
type TestHandler struct {
	intake engine.WebhookProcessor
	users  engine.UserStateRepository
	audits engine.WebhookMessageRepository
}

// NewTestHandler crea un nuevo handler de test
func NewTestHandler(intake engine.WebhookProcessor, users engine.UserStateRepository, audits engine.WebhookMessageRepository) *TestHandler {
	return &TestHandler{
		intake: intake,
		users:  users,
		audits: audits,
	}
}

// SendTestMessage envía un mensaje de prueba por el pipeline de intake
// POST /test/message
func (h *TestHandler) SendTestMessage(c *fiber.Ctx) error {
	var req struct {
		BrandID           int64  `json:"brand_id" validate:"required"`
		AccountID         int64  `json:"user_id"`
		Sender            string `json:"sender" validate:"required"`
		Channel           string `json:"channel"`
		ChannelIdentifier string `json:"channel_identifier"`
		Text              string `json:"text" validate:"required"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Sender == "" || req.Text == "" || req.BrandID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id, sender and text are required",
		})
	}

	if req.Channel == "" {
		req.Channel = "whatsapp"
	}
	if req.ChannelIdentifier == "" {
		req.ChannelIdentifier = "test-account"
	}

	log.Printf("📨 [TEST CHANNEL] Received message: '%s' from %s (%s)", req.Text, req.Sender, req.Channel)

	webhook := engine.WebhookRequest{
		Sender:            req.Sender,
		BrandID:           req.BrandID,
		AccountID:         req.AccountID,
		ChannelIdentifier: req.ChannelIdentifier,
		MessageType:       "text",
		MessageBody:       testMessageBody(req.Channel, req.Text),
		Channel:           req.Channel,
	}

	// Process through the real intake pipeline (audit, lock, orchestrator)
	resp := h.intake.Process(c.Context(), webhook)

	log.Printf("✅ Test message processed: status=%s automation=%v", resp.Status, resp.AutomationTriggered)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   resp.Status != engine.ResponseStatusError,
		"sender":    req.Sender,
		"channel":   req.Channel,
		"text":      req.Text,
		"result":    resp,
		"timestamp": time.Now().Unix(),
	})
}

// testMessageBody arma el message_body con la forma que el adaptador espera
// para cada canal. WhatsApp usa el formato anidado de la Cloud API; el resto
// cae al formato genérico.
func testMessageBody(channel, text string) map[string]any {
	if strings.EqualFold(channel, "whatsapp") {
		return map[string]any{
			"type": "text",
			"text": map[string]any{"body": text},
		}
	}
	return map[string]any{"text": text}
}

// GetUserState muestra el estado conversacional de una identidad de prueba
// GET /test/user/:identifier?brand_id=N
func (h *TestHandler) GetUserState(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if identifier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User identifier is required",
		})
	}

	brandID, err := strconv.ParseInt(c.Query("brand_id", "0"), 10, 64)
	if err != nil || brandID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id query param is required",
		})
	}

	state, err := h.users.FindByIdentity(c.Context(), identifier, brandID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No state for this identity yet, send a message first",
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"user_identifier":   state.UserIdentifier,
		"channel":           state.Channel,
		"in_automation":     state.IsInAutomation,
		"current_flow_id":   state.CurrentFlowID,
		"current_node_id":   state.CurrentNodeID,
		"last_flow_id":      state.LastFlowID,
		"parked_on_delay":   state.IsParkedOnDelay(),
		"validation_failed": state.ValidationFailed,
		"validation_count":  state.ValidationFailureCount,
		"lead_id":           state.LeadID,
		"updated_at":        state.UpdatedAt,
	})
}

// ListUserStates lista los estados de usuario de una marca, paginados
// GET /test/users?brand_id=N&page=1&page_size=20&channel=whatsapp&in_automation=true
func (h *TestHandler) ListUserStates(c *fiber.Ctx) error {
	brandID, err := strconv.ParseInt(c.Query("brand_id", "0"), 10, 64)
	if err != nil || brandID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id query param is required",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	req := engine.UserStateListRequest{
		PaginationOptions: storex.PaginationOptions{Page: page, PageSize: pageSize},
		BrandID:           brandID,
	}
	if ch := c.Query("channel"); ch != "" {
		req.Channel = &ch
	}
	if v := c.Query("in_automation"); v != "" {
		if b, parseErr := strconv.ParseBool(v); parseErr == nil {
			req.InAutomation = &b
		}
	}

	out, err := h.users.List(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// ListWebhookMessages lista las filas de auditoría del intake de una marca
// GET /test/webhooks?brand_id=N&status=error&page=1&page_size=20
func (h *TestHandler) ListWebhookMessages(c *fiber.Ctx) error {
	brandID, err := strconv.ParseInt(c.Query("brand_id", "0"), 10, 64)
	if err != nil || brandID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id query param is required",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	req := engine.WebhookMessageListRequest{
		PaginationOptions: storex.PaginationOptions{Page: page, PageSize: pageSize},
		BrandID:           brandID,
	}
	if s := c.Query("status"); s != "" {
		status := engine.WebhookStatus(s)
		req.Status = &status
	}
	if s := c.Query("sender"); s != "" {
		req.Sender = &s
	}

	out, err := h.audits.List(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetWebhookMessage devuelve una fila de auditoría por id. El intake devuelve
// el webhook_id en cada respuesta, así que sirve para rastrear un mensaje.
// GET /test/webhook/:webhook_id
func (h *TestHandler) GetWebhookMessage(c *fiber.Ctx) error {
	id := c.Params("webhook_id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "webhook_id is required",
		})
	}

	msg, err := h.audits.FindByID(c.Context(), kernel.WebhookID(id))
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No webhook message with that id",
			})
		}
		return err
	}
	return c.JSON(msg)
}

// HealthCheck verifica el estado del sistema de testing
// GET /test/health
func (h *TestHandler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "test-channel",
		"timestamp": time.Now().Unix(),
	})
}

// GetTestInstructions muestra instrucciones de uso
// GET /test/instructions
func (h *TestHandler) GetTestInstructions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Test Channel API",
		"endpoints": map[string]any{
			"POST /test/message": map[string]any{
				"description": "Send a test message through the intake pipeline",
				"body": map[string]any{
					"brand_id":           7,
					"user_id":            3,
					"sender":             "+5491100000001",
					"channel":            "whatsapp (default)",
					"channel_identifier": "optional, defaults to test-account",
					"text":               "hola",
				},
			},
			"GET /test/user/:identifier?brand_id=N": "Current automation state of an identity",
			"GET /test/users?brand_id=N":            "Paginated user states for a brand",
			"GET /test/webhooks?brand_id=N":         "Intake audit rows, filterable by status",
			"GET /test/webhook/:webhook_id":         "One intake audit row by id",
			"GET /test/health":                      "Health check",
		},
		"notes": []string{
			"Messages go through the real intake: audit row, identity lock and orchestrator.",
			"A keyword matching a published flow trigger starts the flow for the sender.",
			"Replies to questions and buttons are validated like real channel messages.",
		},
		"examples": map[string]string{
			"curl": `curl -X POST http://localhost:8080/test/message \
  -H "Content-Type: application/json" \
  -d '{"brand_id": 7, "user_id": 3, "sender": "+5491100000001", "text": "hola"}'`,
		},
	})
}
