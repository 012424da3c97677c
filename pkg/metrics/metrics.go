package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Contadores del ciclo de vida del motor. Se incrementan en los puntos de
// paso del intake, el orquestador y el walker.
var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_messages_processed_total",
		Help: "Inbound webhook messages processed, by channel and outcome status.",
	}, []string{"channel", "status"})

	AutomationsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_automations_triggered_total",
		Help: "Flows started for a user, by channel.",
	}, []string{"channel"})

	AutomationsExited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_automations_exited_total",
		Help: "Automations that reached a terminal node and released the user.",
	})

	ValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_validation_failures_total",
		Help: "User replies rejected by answer validation.",
	})

	DelaysScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_delays_scheduled_total",
		Help: "Delay records created when a walk parked on a delay node.",
	})

	DelaysFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_delays_fired_total",
		Help: "Due delays picked up and resumed by the scheduler worker.",
	})

	NodeDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_node_dispatches_total",
		Help: "External node dispatches to channel services, by node type and status.",
	}, []string{"node_type", "status"})

	IntakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentflow_intake_duration_seconds",
		Help:    "End-to-end time to process one inbound webhook message.",
		Buckets: prometheus.DefBuckets,
	})
)

// RegisterRoutes expone los colectores en GET /metrics.
func RegisterRoutes(app *fiber.App) {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	})
}
