package ui

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gofactor/adapters/exports"
	"gofactor/app"
	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
	"gofactor/internal/config"
	"gofactor/internal/errors"
	"gofactor/internal/report"
	"gofactor/ports"
)

const workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server exposes the analysis pipeline over HTTP: trigger runs, list them,
// and fetch a stored run as JSON, HTML report or xlsx workbook.
type Server struct {
	router   *gin.Engine
	service  *app.AnalysisService
	store    ports.ResultStore
	cfg      *config.Config
	table    *survey.Table
	reports  *report.Builder
	workbook *exports.WorkbookWriter
}

// NewServer creates the API server. The table is the survey data loaded at
// startup; it may be nil, in which case every run must post its table inline.
func NewServer(cfg *config.Config, service *app.AnalysisService, store ports.ResultStore, table *survey.Table) *Server {
	gin.SetMode(cfg.Server.GinMode)

	s := &Server{
		router:   gin.Default(),
		service:  service,
		store:    store,
		cfg:      cfg,
		table:    table,
		reports:  report.NewBuilder(),
		workbook: exports.NewWorkbookWriter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/runs", s.handleCreateRun)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/report", s.handleRunReport)
		api.GET("/runs/:id/workbook", s.handleRunWorkbook)
	}
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	log.Printf("[StudyAPI] Listening on http://%s", addr)
	return s.router.Run(addr)
}

// Router exposes the underlying handler so tests can drive the server
// without a listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// TablePayload is an inline survey table posted with a run request.
type TablePayload struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// ConfigOverrides carries per-run analysis settings. Omitted fields keep the
// configured defaults.
type ConfigOverrides struct {
	FactorCount         *int     `json:"factor_count,omitempty"`
	Rotation            *string  `json:"rotation,omitempty"`
	Association         *string  `json:"association,omitempty"`
	BootstrapIterations *int     `json:"bootstrap_iterations,omitempty"`
	BootstrapFraction   *float64 `json:"bootstrap_fraction,omitempty"`
	Seed                *int64   `json:"seed,omitempty"`
}

// RunRequest is the POST /api/runs body. Every field is optional; anything
// omitted falls back to the startup table and the configured study layout.
type RunRequest struct {
	Table       *TablePayload        `json:"table,omitempty"`
	Items       []string             `json:"items,omitempty"`
	Config      *ConfigOverrides     `json:"config,omitempty"`
	Comparisons []app.ComparisonSpec `json:"comparisons,omitempty"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreateRun executes one pipeline run and returns the assembled result.
func (s *Server) handleCreateRun(c *gin.Context) {
	var body RunRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	req, err := s.buildStudyRequest(body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.RunStudy(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// buildStudyRequest merges the request body with the configured defaults.
func (s *Server) buildStudyRequest(body RunRequest) (app.StudyRequest, error) {
	table := s.table
	if body.Table != nil {
		table = survey.NewTable(body.Table.Columns, body.Table.Rows)
		if err := table.Validate(); err != nil {
			return app.StudyRequest{}, err
		}
	}
	if table == nil {
		return app.StudyRequest{}, errors.InvalidInput("no survey table loaded; post one inline")
	}

	items := s.cfg.Items()
	if len(body.Items) > 0 {
		items = make([]core.ItemKey, len(body.Items))
		for i, column := range body.Items {
			items[i] = core.ItemKey(column)
		}
	}

	settings := s.cfg.AnalysisSettings()
	if o := body.Config; o != nil {
		if o.FactorCount != nil {
			settings.FactorCount = *o.FactorCount
		}
		if o.Rotation != nil {
			settings.Rotation = factor.Rotation(*o.Rotation)
		}
		if o.Association != nil {
			settings.Association = factor.Measure(*o.Association)
		}
		if o.BootstrapIterations != nil {
			settings.BootstrapIterations = *o.BootstrapIterations
		}
		if o.BootstrapFraction != nil {
			settings.BootstrapFraction = *o.BootstrapFraction
		}
		if o.Seed != nil {
			settings.Seed = *o.Seed
		}
	}

	comparisons := body.Comparisons
	if comparisons == nil {
		comparisons = s.defaultComparisons(table)
	}

	return app.StudyRequest{
		Table:       table,
		Items:       items,
		Filter:      s.cfg.PopulationFilter(),
		Groups:      s.cfg.GroupSpecs(),
		Config:      settings,
		Comparisons: comparisons,
	}, nil
}

// defaultComparisons builds the configured between-format contrasts. Default
// contrasts only apply when their columns exist in the table; explicit specs
// in the request pass through untouched and fail loudly on a bad column.
func (s *Server) defaultComparisons(table *survey.Table) []app.ComparisonSpec {
	format := s.cfg.Study.FormatColumn
	if _, ok := table.ColumnIndex(format); !ok {
		return nil
	}

	var specs []app.ComparisonSpec
	if column := s.cfg.Study.TimeColumn; column != "" {
		if _, ok := table.ColumnIndex(column); ok {
			specs = append(specs, app.CompletionTimeSpec(column, format))
		}
	}
	if column := s.cfg.Study.TextColumn; column != "" {
		if _, ok := table.ColumnIndex(column); ok {
			specs = append(specs, app.TextResponseSpec(column, format))
		}
	}
	return specs
}

// handleListRuns returns stored run summaries, newest first.
func (s *Server) handleListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	summaries, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  summaries,
		"count": len(summaries),
	})
}

// handleGetRun returns one stored run as JSON.
func (s *Server) handleGetRun(c *gin.Context) {
	result, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRunReport renders one stored run as an HTML report.
func (s *Server) handleRunReport(c *gin.Context) {
	result, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.reports.HTML(result))
}

// handleRunWorkbook streams one stored run as an xlsx workbook.
func (s *Server) handleRunWorkbook(c *gin.Context) {
	result, ok := s.loadRun(c)
	if !ok {
		return
	}

	buf, err := s.workbook.Build(result)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("study-%s.xlsx", result.RunID)))
	c.Data(http.StatusOK, workbookContentType, buf.Bytes())
}

// loadRun fetches the run named by the path parameter, writing the error
// response itself when the lookup fails.
func (s *Server) loadRun(c *gin.Context) (*factor.StudyResult, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	result, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return result, true
}

// respondError maps pipeline and store errors onto HTTP statuses:
// configuration and input problems are the caller's fault, a missing run is
// 404, anything else is a 500.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.GetCode(err) == errors.CodeNotFound || core.IsNotFoundError(err):
		status = http.StatusNotFound
	case core.IsConfigurationError(err) || core.IsInputError(err) ||
		errors.GetCode(err) == errors.CodeInvalidInput:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Printf("[StudyAPI] Request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
