package flowapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/craftable/storex"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/flow/flowsrv"
	"github.com/agentcord/agentflow/iam/auth"
	"github.com/agentcord/agentflow/pkg/kernel"
)

// Handler expone la gestión de flujos, el catálogo de nodos, los ajustes por
// nodo y los disparos programados sobre HTTP
type Handler struct {
	service *flowsrv.Service
}

func NewHandler(service *flowsrv.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes monta todas las rutas de gestión bajo el middleware de
// identidad.
func (h *Handler) RegisterRoutes(app *fiber.App, authMw *auth.AuthMiddleware) {
	flows := app.Group("/flow", authMw.Authenticate())
	flows.Post("/create", h.CreateFlow)
	flows.Put("/update/:flow_id", h.UpdateFlow)
	flows.Get("/list", h.ListFlows)
	flows.Get("/detail/:flow_id", h.GetFlowDetail)
	flows.Post("/status/:flow_id", h.UpdateFlowStatus)

	flows.Post("/settings", h.UpsertFlowSettings)
	flows.Get("/settings/:flow_id/:node_id", h.GetFlowSettings)

	flows.Post("/schedule", h.CreateSchedule)
	flows.Get("/schedule/:flow_id", h.ListSchedules)
	flows.Delete("/schedule/:schedule_id", h.DeleteSchedule)

	details := app.Group("/node-details", authMw.Authenticate())
	details.Get("/list", h.ListNodeDetails)
	details.Get("/category/:category", h.ListNodeDetailsByCategory)
	details.Get("/:node_id", h.GetNodeDetail)
}

// ============================================================================
// Flow Handlers
// ============================================================================

// CreateFlow guarda un flujo nuevo del builder
// POST /flow/create
func (h *Handler) CreateFlow(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}

	var req flow.CreateFlowRequest
	if err := c.BodyParser(&req); err != nil {
		return flow.ErrInvalidFlowData().WithDetail("reason", "malformed request body")
	}

	created, err := h.service.CreateFlow(c.Context(), authCtx.AccountID, brandID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateFlow reemplaza las partes del flujo presentes en el cuerpo
// PUT /flow/update/:flow_id
func (h *Handler) UpdateFlow(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}
	flowID := kernel.FlowID(c.Params("flow_id"))

	var req flow.UpdateFlowRequest
	if err := c.BodyParser(&req); err != nil {
		return flow.ErrInvalidFlowData().WithDetail("reason", "malformed request body")
	}

	updated, err := h.service.UpdateFlow(c.Context(), authCtx.AccountID, brandID, flowID, req)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// ListFlows lista los flujos de la marca paginados
// GET /flow/list?page=1&page_size=20&status=published
func (h *Handler) ListFlows(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	var status *flow.FlowStatus
	if s := c.Query("status"); s != "" {
		fs := flow.FlowStatus(s)
		status = &fs
	}

	out, err := h.service.ListFlows(c.Context(), authCtx.AccountID, brandID,
		storex.PaginationOptions{Page: page, PageSize: pageSize}, status)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetFlowDetail devuelve el flujo con su grafo completo
// GET /flow/detail/:flow_id
func (h *Handler) GetFlowDetail(c *fiber.Ctx) error {
	flowID := kernel.FlowID(c.Params("flow_id"))

	detail, err := h.service.GetFlowDetail(c.Context(), flowID)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// UpdateFlowStatus publica o detiene un flujo
// POST /flow/status/:flow_id
func (h *Handler) UpdateFlowStatus(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}
	flowID := kernel.FlowID(c.Params("flow_id"))

	var req flow.UpdateFlowStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return flow.ErrInvalidFlowStatus().WithDetail("reason", "malformed request body")
	}
	if req.Status == "" {
		return flow.ErrInvalidFlowStatus().WithDetail("reason", "status is required")
	}

	updated, err := h.service.UpdateFlowStatus(c.Context(), authCtx.AccountID, brandID, flowID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// ============================================================================
// Flow Settings Handlers
// ============================================================================

// UpsertFlowSettings guarda los ajustes de un nodo
// POST /flow/settings
func (h *Handler) UpsertFlowSettings(c *fiber.Ctx) error {
	var req flow.UpsertFlowSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return flow.ErrInvalidFlowData().WithDetail("reason", "malformed request body")
	}

	out, err := h.service.UpsertFlowSettings(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// GetFlowSettings devuelve los ajustes de un nodo
// GET /flow/settings/:flow_id/:node_id
func (h *Handler) GetFlowSettings(c *fiber.Ctx) error {
	flowID := kernel.FlowID(c.Params("flow_id"))
	nodeID := kernel.NodeID(c.Params("node_id"))

	out, err := h.service.GetFlowSettings(c.Context(), flowID, nodeID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// ============================================================================
// Schedule Handlers
// ============================================================================

// CreateSchedule programa el disparo de un flujo
// POST /flow/schedule
func (h *Handler) CreateSchedule(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}

	var req engine.CreateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.ErrInvalidScheduleConfig().WithDetail("reason", "malformed request body")
	}

	created, err := h.service.CreateSchedule(c.Context(), authCtx.AccountID, brandID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListSchedules lista los disparos programados de un flujo
// GET /flow/schedule/:flow_id
func (h *Handler) ListSchedules(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}
	flowID := kernel.FlowID(c.Params("flow_id"))

	out, err := h.service.ListSchedules(c.Context(), authCtx.AccountID, brandID, flowID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"schedules": out})
}

// DeleteSchedule elimina un disparo programado
// DELETE /flow/schedule/:schedule_id
func (h *Handler) DeleteSchedule(c *fiber.Ctx) error {
	authCtx, ok := auth.GetAuthContext(c)
	if !ok {
		return auth.ErrMissingIdentity()
	}
	brandID, err := resolveBrandID(c, authCtx)
	if err != nil {
		return err
	}
	scheduleID := kernel.ScheduleID(c.Params("schedule_id"))

	if err := h.service.DeleteSchedule(c.Context(), authCtx.AccountID, brandID, scheduleID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "deleted", "schedule_id": scheduleID.String()})
}

// ============================================================================
// Node Catalog Handlers
// ============================================================================

// ListNodeDetails devuelve el catálogo completo de tipos de nodo
// GET /node-details/list
func (h *Handler) ListNodeDetails(c *fiber.Ctx) error {
	out, err := h.service.ListNodeDetails(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"node_details": out})
}

// ListNodeDetailsByCategory filtra el catálogo por categoría
// GET /node-details/category/:category
func (h *Handler) ListNodeDetailsByCategory(c *fiber.Ctx) error {
	out, err := h.service.ListNodeDetailsByCategory(c.Context(), c.Params("category"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"node_details": out})
}

// GetNodeDetail devuelve un tipo de nodo del catálogo
// GET /node-details/:node_id
func (h *Handler) GetNodeDetail(c *fiber.Ctx) error {
	out, err := h.service.GetNodeDetail(c.Context(), c.Params("node_id"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// resolveBrandID takes the brand from the token when present, else from the
// brand_id query param. Management calls always need a brand to scope by.
func resolveBrandID(c *fiber.Ctx, authCtx *kernel.AuthContext) (int64, error) {
	if authCtx.BrandID > 0 {
		return authCtx.BrandID, nil
	}
	if q := c.Query("brand_id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, flow.ErrInvalidFlowData().WithDetail("reason", "brand_id is required as a token claim or query param")
}
