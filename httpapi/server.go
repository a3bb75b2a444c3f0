package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"eve.evalgo.org/workflow/agents"
	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/anomaly"
	"eve.evalgo.org/workflow/audit"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/notify"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
	"eve.evalgo.org/workflow/statemanager"
	"eve.evalgo.org/workflow/transition"
)

// Dependencies bundles every wired component the REST surface dispatches
// into. Assembled once by cmd/workflow-engine/main.go and handed to
// NewServer, mirroring cli/root.go's Handlers struct but generalized from
// three teacher services (RabbitMQ/CouchDB/JWT) to this module's eleven.
type Dependencies struct {
	Registry     *kanban.Registry
	Repo         *repository.ProcessRepository
	Checker      *prerequisite.Checker
	Engine       *transition.Engine
	Analyzer     *analysis.Analyzer
	Detector     *anomaly.Detector
	Orchestrator *agents.Orchestrator
	Feedback     *agents.FeedbackLoop
	Dashboard    *audit.Dashboard
	Trail        *audit.Trail
	Exporter     *audit.Exporter
	Notifier     *notify.Dispatcher
	Ops          *statemanager.Manager

	APIKey    string
	JWTSecret string
}

// NewServer builds the echo.Echo instance with the full route table of
// spec section 6.4, logging/recover/CORS middleware in the teacher's order
// (cli/root.go: Logger, Recover, CORS), and dual API-key/JWT auth guarding
// every state-changing endpoint.
func NewServer(deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if deps.Ops != nil {
		e.Use(deps.Ops.Middleware("http_request"))
	}

	h := &handlers{deps: deps}

	e.GET("/health", h.livenessCheck)
	if deps.Ops != nil {
		deps.Ops.RegisterRoutes(e.Group("/operations"))
	}

	write := []echo.MiddlewareFunc{}
	if deps.APIKey != "" {
		write = append(write, APIKeyAuth(deps.APIKey))
	}
	if deps.JWTSecret != "" {
		write = append(write, JWTAuth(deps.JWTSecret))
	}

	e.GET("/kanbans", h.listKanbans)
	e.GET("/kanbans/:id", h.getKanban)
	e.POST("/kanbans", h.createOrUpdateKanban, write...)
	e.POST("/kanbans/:id/validate", h.validateKanban, write...)

	e.GET("/processes", h.listProcesses)
	e.GET("/processes/:id", h.getProcess)
	e.POST("/process/:id/transition", h.transitionProcess, write...)
	e.GET("/processes/:id/suggest", h.suggestTransition)
	e.GET("/processes/:id/suggest/all", h.suggestTransitionAll)
	e.GET("/processes/:id/validate/:target", h.validateTransition)

	e.GET("/dashboard/:k", h.kanbanDashboardSummary)
	e.GET("/health/:k", h.kanbanHealth)
	e.GET("/stats/:k", h.kanbanStats)
	e.GET("/bottlenecks/:k", h.kanbanBottlenecks)

	e.GET("/anomalies/:k", h.anomalyReport)
	e.GET("/anomalies/:k/stuck", h.anomalyStuck)
	e.GET("/anomalies/:k/loops", h.anomalyLoops)

	e.GET("/patterns/:k", h.patterns)
	e.GET("/patterns/:k/classified", h.patternsClassified)
	e.GET("/patterns/:k/matrix", h.patternsMatrix)
	e.GET("/patterns/:k/durations", h.patternsDurations)
	e.GET("/patterns/:k/similar/:pid", h.patternsSimilar)

	e.GET("/audit/process/:id", h.auditProcessTrail)
	e.GET("/audit/kanban/:k", h.auditKanbanTrail)
	e.GET("/audit/recent", h.auditRecentActivity)
	e.GET("/audit/forced", h.auditForcedTransitions)
	e.GET("/audit/stats", h.auditActivityStatistics)
	e.GET("/audit/compliance/:k", h.auditComplianceReport)

	e.GET("/export/:k/csv", h.exportCSV)
	e.GET("/export/:k/excel", h.exportExcel)
	e.GET("/export/:k/pdf", h.exportPDF)

	return e
}

// handlers holds the Dependencies every resource group's handler methods
// read from, split across kanbans.go/processes.go/dashboard.go/... by
// resource, the same one-file-per-resource layout the teacher uses for its
// own api package.
type handlers struct {
	deps *Dependencies
}

func (h *handlers) livenessCheck(c echo.Context) error {
	return c.JSON(200, map[string]string{"status": "ok"})
}
