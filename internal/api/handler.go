package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"retail-analytics/internal/analysis"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
	"retail-analytics/internal/service"
	"retail-analytics/internal/store"
	"retail-analytics/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dashboard is the query side served under /api/v1
type Dashboard interface {
	Options(ctx context.Context) (*service.DashboardOptions, error)
	ResolveRange(ctx context.Context, quick string) (*service.DateRange, error)
	KPIs(ctx context.Context, f store.Filter) (*service.KPIs, error)
	MonthlyRevenue(ctx context.Context, f store.Filter, compare string) (*service.MonthlySeries, error)
	SalesByWeekday(ctx context.Context, f store.Filter) ([]models.WeekdayRevenue, error)
	Heatmap(ctx context.Context, f store.Filter) (*service.HeatmapMatrix, error)
	Segments(ctx context.Context, f store.Filter) ([]analysis.SegmentSummary, error)
	Geography(ctx context.Context, f store.Filter) ([]models.CountryRevenue, error)
	TopProducts(ctx context.Context, f store.Filter) ([]models.ProductSales, error)
	ExportCSV(ctx context.Context, f store.Filter, w io.Writer) error
}

// PipelineRunner starts a batch run
type PipelineRunner interface {
	Run(ctx context.Context, archivePath string) (*models.RunSummary, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	dashboard   Dashboard
	runner      PipelineRunner
	archivePath string
	checks      map[string]ReadinessCheck
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(dashboard Dashboard, runner PipelineRunner, archivePath string, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		dashboard:   dashboard,
		runner:      runner,
		archivePath: archivePath,
		checks:      checks,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/options", h.getOptions)
		v1.GET("/range", h.getRange)
		v1.GET("/kpis", h.getKPIs)
		v1.GET("/monthly-revenue", h.getMonthlyRevenue)
		v1.GET("/sales-by-weekday", h.getSalesByWeekday)
		v1.GET("/heatmap", h.getHeatmap)
		v1.GET("/segments", h.getSegments)
		v1.GET("/geography", h.getGeography)
		v1.GET("/top-products", h.getTopProducts)
		v1.GET("/export.csv", h.exportCSV)
		v1.POST("/pipeline/runs", h.startRun)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// parseFilter reads country, start, end and products from the query string
func parseFilter(c *gin.Context) (store.Filter, error) {
	f := store.Filter{
		Country:  strings.TrimSpace(c.Query("country")),
		Products: c.QueryArray("products"),
	}

	var err error
	if v := c.Query("start"); v != "" {
		if f.Start, err = time.Parse(time.DateOnly, v); err != nil {
			return f, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD", v)
		}
	}
	if v := c.Query("end"); v != "" {
		if f.End, err = time.Parse(time.DateOnly, v); err != nil {
			return f, fmt.Errorf("invalid end date %q, expected YYYY-MM-DD", v)
		}
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return f, errors.New("end date is before start date")
	}
	return f, nil
}

func badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// respond maps service errors onto status codes
func (h *Handler) respond(c *gin.Context, msg string, body interface{}, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, body)
	case errors.Is(err, service.ErrCountryRequired):
		badRequest(c, msg, err)
	case errors.Is(err, service.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   msg,
			"details": err.Error(),
		})
	default:
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   msg,
			"details": err.Error(),
		})
	}
}

func (h *Handler) getOptions(c *gin.Context) {
	opts, err := h.dashboard.Options(c.Request.Context())
	h.respond(c, "Failed to load options", opts, err)
}

func (h *Handler) getRange(c *gin.Context) {
	r, err := h.dashboard.ResolveRange(c.Request.Context(), c.DefaultQuery("quick", service.RangeAll))
	if err != nil {
		h.respond(c, "Failed to resolve range", nil, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"start": r.Start.Format(time.DateOnly),
		"end":   r.End.Format(time.DateOnly),
	})
}

// withFilter parses the filter and answers 400 on a malformed one
func (h *Handler) withFilter(c *gin.Context, msg string, fn func(f store.Filter) (interface{}, error)) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, "Invalid filter", err)
		return
	}
	body, err := fn(f)
	h.respond(c, msg, body, err)
}

func (h *Handler) getKPIs(c *gin.Context) {
	h.withFilter(c, "Failed to compute KPIs", func(f store.Filter) (interface{}, error) {
		return h.dashboard.KPIs(c.Request.Context(), f)
	})
}

func (h *Handler) getMonthlyRevenue(c *gin.Context) {
	compare := c.DefaultQuery("compare", service.CompareNone)
	switch compare {
	case service.CompareNone, service.ComparePrev, service.CompareYoY:
	default:
		badRequest(c, "Invalid filter", fmt.Errorf("unknown compare mode %q", compare))
		return
	}

	h.withFilter(c, "Failed to load monthly revenue", func(f store.Filter) (interface{}, error) {
		return h.dashboard.MonthlyRevenue(c.Request.Context(), f, compare)
	})
}

func (h *Handler) getSalesByWeekday(c *gin.Context) {
	h.withFilter(c, "Failed to load weekday sales", func(f store.Filter) (interface{}, error) {
		return h.dashboard.SalesByWeekday(c.Request.Context(), f)
	})
}

func (h *Handler) getHeatmap(c *gin.Context) {
	h.withFilter(c, "Failed to load heatmap", func(f store.Filter) (interface{}, error) {
		return h.dashboard.Heatmap(c.Request.Context(), f)
	})
}

func (h *Handler) getSegments(c *gin.Context) {
	h.withFilter(c, "Failed to load segments", func(f store.Filter) (interface{}, error) {
		return h.dashboard.Segments(c.Request.Context(), f)
	})
}

func (h *Handler) getGeography(c *gin.Context) {
	h.withFilter(c, "Failed to load geography", func(f store.Filter) (interface{}, error) {
		return h.dashboard.Geography(c.Request.Context(), f)
	})
}

func (h *Handler) getTopProducts(c *gin.Context) {
	h.withFilter(c, "Failed to load top products", func(f store.Filter) (interface{}, error) {
		return h.dashboard.TopProducts(c.Request.Context(), f)
	})
}

// exportCSV streams the filtered rows as a download
func (h *Handler) exportCSV(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, "Invalid filter", err)
		return
	}
	if f.Country == "" {
		badRequest(c, "Failed to export", service.ErrCountryRequired)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ExportFilename(f)))
	c.Status(http.StatusOK)

	if err := h.dashboard.ExportCSV(c.Request.Context(), f, c.Writer); err != nil {
		// headers are already sent, the truncated body is all we can signal
		h.logger.Error("Failed to export", zap.Error(err))
		_ = c.Error(err)
	}
}

// startRun runs the pipeline on the configured archive. The run outlives a
// disconnected client so a reload is never abandoned half way.
func (h *Handler) startRun(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())

	summary, err := h.runner.Run(ctx, h.archivePath)
	var dq *pipeline.DataQualityError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Pipeline run already in progress",
		})
	case errors.As(err, &dq):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Source data failed validation",
			"details": dq.Error(),
			"line":    dq.Line,
			"column":  dq.Column,
		})
	default:
		h.logger.Error("Pipeline run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Pipeline run failed",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
