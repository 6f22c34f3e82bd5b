package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
)

// WorkflowRunner is what the HTTP layer needs from the orchestrator.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, text string) (*models.WorkflowState, error)
	GetRunStatus(ctx context.Context, runID string) (*models.WorkflowRun, error)
	GetActiveRunCount() int
	GetStats() map[string]interface{}
	HealthCheck(ctx context.Context) error
}

// ProductLister serves the public catalog endpoint.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// ChatHandler handles chat message submission and run inspection.
type ChatHandler struct {
	runner  WorkflowRunner
	catalog ProductLister
	logger  *logger.Logger
}

func NewChatHandler(runner WorkflowRunner, catalog ProductLister, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		runner:  runner,
		catalog: catalog,
		logger:  log,
	}
}

// ChatRequest is a single customer message.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// HandleChat runs the routing workflow for one message and returns the
// terminal state. Fatal workflow errors map to 502; the state already encodes
// every recoverable failure.
func (handler *ChatHandler) HandleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: message is required"})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: message is required"})
		return
	}

	state, err := handler.runner.RunWorkflow(c.Request.Context(), req.Message)
	if err != nil {
		handler.logger.WithError(err).Error("workflow run failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": models.UserFacingMessage(err)})
		return
	}

	c.JSON(http.StatusOK, state)
}

// HandleGetRun returns the stored envelope for a terminated or in-flight run.
func (handler *ChatHandler) HandleGetRun(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Run ID is required"})
		return
	}

	run, err := handler.runner.GetRunStatus(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		handler.logger.WithError(err).Error("run lookup failed", "run_id", runID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// HandleListProducts serves the catalog to the storefront. Browser clients
// call this directly, hence the permissive CORS headers.
func (handler *ChatHandler) HandleListProducts(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")

	if c.Request.Method == http.MethodOptions {
		c.Status(http.StatusNoContent)
		return
	}

	products, err := handler.catalog.ListProducts(c.Request.Context())
	if err != nil {
		handler.logger.WithError(err).Error("product listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}

	if products == nil {
		products = []models.Product{}
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (handler *ChatHandler) HandleHealth(c *gin.Context) {
	if err := handler.runner.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"active_runs": handler.runner.GetActiveRunCount(),
	})
}

func (handler *ChatHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, handler.runner.GetStats())
}

// RegisterRoutes wires the handler into the router.
func (handler *ChatHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/chat", handler.HandleChat)
		api.GET("/runs/:id", handler.HandleGetRun)
		api.GET("/products", handler.HandleListProducts)
		api.OPTIONS("/products", handler.HandleListProducts)
	}

	router.GET("/health", handler.HandleHealth)
	router.GET("/stats", handler.HandleStats)
}
