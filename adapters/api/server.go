package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"goboot/adapters/estimators"
	"goboot/app"
	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/internal"
	"goboot/internal/config"
	"goboot/internal/errors"
	"goboot/ports"
)

// Server hosts the HTTP API over the bootstrap service.
type Server struct {
	router  *gin.Engine
	service *app.BootstrapService
	manager *RunManager
	hub     *SSEHub
	logger  *internal.Logger
	port    string
}

// NewServer wires routes over the given service. The manager and hub
// are created here; callers only supply the orchestration layer.
func NewServer(cfg *config.Config, service *app.BootstrapService) *Server {
	if cfg != nil && cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	hub := NewSSEHub()
	s := &Server{
		router:  gin.Default(),
		service: service,
		manager: NewRunManager(service, hub),
		hub:     hub,
		logger:  internal.DefaultLogger,
	}
	if cfg != nil {
		s.port = cfg.Server.Port
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/healthz", s.handleHealth())
	s.router.GET("/api/estimators", s.handleEstimators())
	s.router.GET("/api/datasets/profile", s.handleProfileSource())

	runs := s.router.Group("/api/runs")
	{
		runs.POST("", s.handleSubmitRun())
		runs.GET("", s.handleListRuns())
		runs.GET("/:id", s.handleGetRun())
		runs.GET("/:id/replicates", s.handleGetReplicates())
		runs.GET("/:id/report", s.handleGetReport())
		runs.GET("/:id/events", s.hub.HandleSSE)
		runs.DELETE("/:id", s.handleDeleteRun())
	}
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.port)
	s.logger.Info("API server listening on %s", addr)
	return s.router.Run(addr)
}

// Router exposes the underlying engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// SubmitRunRequest is the wire form of a run submission. The estimator
// arrives as a catalog spec and is resolved here, at the boundary.
type SubmitRunRequest struct {
	Source     string          `json:"source"`
	Estimator  estimators.Spec `json:"estimator"`
	Iterations int             `json:"iterations"`
	Seed       int64           `json:"seed"`
	Workers    int             `json:"workers"`
	Confidence float64         `json:"confidence"`
	Method     string          `json:"method"`
}

// summaryView is a SeriesSummary with its per-series error flattened to
// a string for transport.
type summaryView struct {
	boot.SeriesSummary
	Error string `json:"error,omitempty"`
}

func summaryViews(summaries []boot.SeriesSummary) []summaryView {
	views := make([]summaryView, len(summaries))
	for i, s := range summaries {
		views[i] = summaryView{SeriesSummary: s}
		if s.Err != nil {
			views[i].Error = s.Err.Error()
		}
	}
	return views
}

// respondError maps an error onto a stable code and HTTP status.
func respondError(c *gin.Context, err error) {
	appErr := errors.FromDomain(err)

	status := http.StatusInternalServerError
	switch appErr.Code {
	case errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInsufficientData:
		status = http.StatusUnprocessableEntity
	case errors.CodeCancelled:
		status = http.StatusConflict
	case errors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"active_runs": s.manager.ActiveCount(),
		})
	}
}

func (s *Server) handleEstimators() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"estimators": estimators.Catalog(),
		})
	}
}

// handleProfileSource profiles a source's columns without running
// anything, so callers can pick estimators and spot data problems
// before submitting.
func (s *Server) handleProfileSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := s.service.ProfileSource(c.Request.Context(), c.Query("source"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// handleSubmitRun accepts a run, launches it in the background, and
// returns 202 with the run ID and its event stream path.
func (s *Server) handleSubmitRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid request body: %v", err),
				"code":  errors.CodeInvalidInput,
			})
			return
		}

		est, err := estimators.Build(req.Estimator)
		if err != nil {
			respondError(c, err)
			return
		}
		method, err := boot.ParseMethod(req.Method)
		if err != nil {
			respondError(c, err)
			return
		}

		runID := s.manager.Submit(app.RunRequest{
			Source:     req.Source,
			Estimator:  est,
			Iterations: req.Iterations,
			Seed:       req.Seed,
			Workers:    req.Workers,
			Confidence: req.Confidence,
			Method:     method,
		})

		c.JSON(http.StatusAccepted, gin.H{
			"run_id": runID,
			"status": "accepted",
			"events": fmt.Sprintf("/api/runs/%s/events", runID),
		})
	}
}

func (s *Server) handleListRuns() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters listFilters
		if err := c.ShouldBindQuery(&filters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid query: %v", err),
				"code":  errors.CodeInvalidInput,
			})
			return
		}

		runs, err := s.service.ListRuns(c.Request.Context(), filters.toPort())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"runs":  runs,
			"count": len(runs),
		})
	}
}

// handleGetRun reports a run's status. In-flight runs answer from the
// progress tracker; finished runs answer from the ledger.
func (s *Server) handleGetRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := core.ParseRunID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
			return
		}

		if completed, total, running := s.manager.Progress(runID); running {
			c.JSON(http.StatusOK, gin.H{
				"run_id":    runID,
				"status":    "running",
				"completed": completed,
				"total":     total,
			})
			return
		}

		set, err := s.service.GetRun(c.Request.Context(), runID)
		if err != nil {
			respondError(c, err)
			return
		}
		summaries, err := s.service.GetSummaries(c.Request.Context(), runID)
		if err != nil {
			respondError(c, err)
			return
		}

		status := "completed"
		if set.Partial {
			status = "partial"
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":      set.RunID,
			"status":      status,
			"estimator":   set.Estimator,
			"outputs":     set.Outputs,
			"requested":   set.Requested,
			"completed":   set.Completed(),
			"usable":      set.Usable(),
			"missing":     set.MissingCount(),
			"partial":     set.Partial,
			"seed":        set.Seed,
			"fingerprint": set.Fingerprint,
			"created_at":  set.CreatedAt,
			"summaries":   summaryViews(summaries),
		})
	}
}

func (s *Server) handleGetReplicates() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := core.ParseRunID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
			return
		}

		set, err := s.service.GetRun(c.Request.Context(), runID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":     set.RunID,
			"outputs":    set.Outputs,
			"replicates": set.Replicates,
		})
	}
}

// handleDeleteRun cancels an in-flight run, or deletes a stored one.
func (s *Server) handleDeleteRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := core.ParseRunID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
			return
		}

		if s.manager.Cancel(runID) {
			c.JSON(http.StatusOK, gin.H{
				"run_id": runID,
				"status": "cancelling",
			})
			return
		}

		if err := s.service.DeleteRun(c.Request.Context(), runID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id": runID,
			"status": "deleted",
		})
	}
}

func (s *Server) handleGetReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := core.ParseRunID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
			return
		}

		ctx := c.Request.Context()
		set, err := s.service.GetRun(ctx, runID)
		if err != nil {
			respondError(c, err)
			return
		}
		summaries, err := s.service.GetSummaries(ctx, runID)
		if err != nil {
			respondError(c, err)
			return
		}
		profiles, err := s.service.DescribeRun(ctx, runID)
		if err != nil {
			respondError(c, err)
			return
		}

		md := BuildReport(set, summaries, profiles)
		if c.Query("format") == "markdown" {
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", RenderHTML(md))
	}
}

// listFilters binds the run listing query string.
type listFilters struct {
	Estimator string `form:"estimator"`
	Partial   *bool  `form:"partial"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

func (f listFilters) toPort() ports.RunFilters {
	filters := ports.RunFilters{
		Limit:   f.Limit,
		Offset:  f.Offset,
		Partial: f.Partial,
	}
	if f.Estimator != "" {
		filters.Estimator = &f.Estimator
	}
	return filters
}
