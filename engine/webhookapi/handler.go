package webhookapi

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/engine/enginesrv"
)

// Handler es el punto de entrada de los servicios de canal: WhatsApp,
// Telegram, SMS y el resto publican aquí cada mensaje entrante para disparar
// la automatización.
type Handler struct {
	intake     engine.WebhookProcessor
	keys       *enginesrv.APIKeyService
	requireKey bool
}

// NewHandler crea el handler del intake. Con requireKey=false los callers
// internos confiables (workers del mismo despliegue) entran sin x-api-key.
func NewHandler(intake engine.WebhookProcessor, keys *enginesrv.APIKeyService, requireKey bool) *Handler {
	return &Handler{
		intake:     intake,
		keys:       keys,
		requireKey: requireKey,
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	webhook := app.Group("/webhook")

	webhook.Post("/message", h.ProcessMessage)
	webhook.Get("/health", h.Health)
}

// ProcessMessage procesa un mensaje entrante. Los fallos de orquestación se
// devuelven embebidos en un 200 para que el servicio de canal no reintente;
// solo un cuerpo malformado o una api key inválida cortan con error HTTP.
// POST /webhook/message
func (h *Handler) ProcessMessage(c *fiber.Ctx) error {
	var req engine.WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("❌ [WEBHOOK_API] Malformed webhook body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  engine.ResponseStatusError,
			"message": "Invalid request body",
		})
	}

	if h.requireKey && h.keys != nil {
		if err := h.keys.Verify(c.Context(), req.BrandID, c.Get("x-api-key")); err != nil {
			return err
		}
	}

	resp := h.intake.Process(c.Context(), req)
	return c.JSON(resp)
}

// Health reports the intake as alive.
// GET /webhook/health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"api":     "webhook_message_api",
		"service": "flow_service",
	})
}
