package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
)

// OracleClient is the classification oracle as the workflow sees it. The
// concrete implementation is GeminiService; tests substitute fixed results.
type OracleClient interface {
	ClassifyMessage(ctx context.Context, text string) (*IntentClassification, error)
	AnalyzeFeedback(ctx context.Context, text string) (*FeedbackAnalysis, error)
	TriageSupport(ctx context.Context, text string) (*SupportAnalysis, error)
	RecommendProduct(ctx context.Context, text string, products []models.Product) (*RecommendationResult, error)
	ExtractOrderAction(ctx context.Context, text string, products []models.Product) (*OrderAction, error)
	HealthCheck(ctx context.Context) error
}

// CatalogStore is the product/order store boundary used by the workflow.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	FindProduct(ctx context.Context, productID string) (*models.Product, error)
	PlaceOrder(ctx context.Context, productID string, quantity int) (*models.OrderRecord, error)
	HealthCheck(ctx context.Context) error
}

// RunStore persists terminated runs and progress updates, best-effort.
type RunStore interface {
	StoreRun(ctx context.Context, run *models.WorkflowRun) error
	GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error)
	PublishStepUpdate(ctx context.Context, update *models.StepUpdate) error
	HealthCheck(ctx context.Context) error
}

// OrderOutcome distinguishes structurally how the order handler ended, so
// callers and logs never have to parse the status text.
type OrderOutcome int

const (
	OrderOutcomeNoAction OrderOutcome = iota
	OrderOutcomeOracleFailed
	OrderOutcomePlaced
	OrderOutcomeRejected
)

func (outcome OrderOutcome) String() string {
	switch outcome {
	case OrderOutcomeOracleFailed:
		return "oracle_failed"
	case OrderOutcomePlaced:
		return "placed"
	case OrderOutcomeRejected:
		return "rejected"
	default:
		return "no_action"
	}
}

const (
	stepRouter         = "intent_router"
	stepFeedback       = "feedback_handler"
	stepSupport        = "support_handler"
	stepRecommendation = "recommendation_handler"
	stepOrder          = "order_handler"
)

const orderApologyReply = "Sorry, I couldn't process your order request right now. Please try again in a moment."

// Orchestrator owns the routing workflow: it runs the intent router, resolves
// the next step and executes at most one handler before terminating.
type Orchestrator struct {
	oracle  OracleClient
	catalog CatalogStore
	runs    RunStore

	config *config.Config
	logger *logger.Logger

	activeRuns sync.Map // run_id -> *models.WorkflowRun

	startTime time.Time
}

type workflowExecutor struct {
	orchestrator *Orchestrator
	run          *models.WorkflowRun
	logger       *logger.Logger
}

func NewOrchestrator(oracle OracleClient, catalog CatalogStore, runs RunStore, cfg *config.Config, log *logger.Logger) *Orchestrator {
	orchestrator := &Orchestrator{
		oracle:    oracle,
		catalog:   catalog,
		runs:      runs,
		config:    cfg,
		logger:    log,
		startTime: time.Now(),
	}

	log.Info("Orchestrator initialized",
		"handlers", []string{stepFeedback, stepSupport, stepRecommendation, stepOrder})

	return orchestrator
}

// RunWorkflow executes one router+handler pass for the given message text and
// returns the terminal state. Only router-level oracle failures and catalog
// fetch failures surface as errors; everything recoverable is encoded into
// the returned state.
func (orchestrator *Orchestrator) RunWorkflow(ctx context.Context, text string) (*models.WorkflowState, error) {
	startTime := time.Now()

	run := models.NewWorkflowRun(text)

	orchestrator.logger.LogWorkflow(run.ID, "workflow_started", 0, nil)

	orchestrator.activeRuns.Store(run.ID, run)
	defer orchestrator.activeRuns.Delete(run.ID)

	executor := &workflowExecutor{
		orchestrator: orchestrator,
		run:          run,
		logger:       orchestrator.logger,
	}

	err := executor.execute(ctx)

	duration := time.Since(startTime)
	if err != nil {
		run.MarkFailed(err)
		orchestrator.logger.LogWorkflow(run.ID, "workflow_failed", duration, err)
		orchestrator.storeRunAsync(run)
		return nil, err
	}

	run.MarkCompleted()
	orchestrator.logger.LogWorkflow(run.ID, "workflow_completed", duration, nil)
	orchestrator.storeRunAsync(run)

	return run.State, nil
}

// storeRunAsync persists the terminal run without delaying the response; a
// failed write only costs the inspection endpoint, never the request.
func (orchestrator *Orchestrator) storeRunAsync(run *models.WorkflowRun) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := orchestrator.runs.StoreRun(ctx, run); err != nil {
			orchestrator.logger.WithError(err).Error("Failed to store terminal workflow run")
		}
	}()
}

func (executor *workflowExecutor) execute(ctx context.Context) error {
	routerPatch, err := executor.runIntentRouter(ctx)
	if err != nil {
		return fmt.Errorf("intent router failed: %w", err)
	}
	routerPatch.Apply(executor.run.State)

	next := ResolveNextStep(executor.run.State.MessageType)

	var patch *models.StatePatch
	switch next {
	case StepEnd:
		executor.logger.Info("workflow terminated at router",
			"run_id", executor.run.ID,
			"message_type", executor.run.State.MessageType)
		return nil
	case StepFeedback:
		patch, err = executor.runFeedbackHandler(ctx)
	case StepSupport:
		patch, err = executor.runSupportHandler(ctx)
	case StepRecommendation:
		patch, err = executor.runRecommendationHandler(ctx)
	case StepOrder:
		var outcome OrderOutcome
		patch, outcome, err = executor.runOrderHandler(ctx)
		if err == nil {
			executor.logger.Info("order handler finished",
				"run_id", executor.run.ID,
				"outcome", outcome.String())
		}
	}

	if err != nil {
		return fmt.Errorf("%s failed: %w", next.String(), err)
	}

	patch.Apply(executor.run.State)
	return nil
}

func (executor *workflowExecutor) runIntentRouter(ctx context.Context) (*models.StatePatch, error) {
	startTime := time.Now()
	executor.publishStepUpdate(ctx, stepRouter, models.StepStatusProcessing, "Classifying message intent")

	classification, err := executor.orchestrator.oracle.ClassifyMessage(ctx, executor.run.State.Message.Text)
	if err != nil {
		executor.recordStep(stepRouter, startTime, err)
		executor.publishStepUpdate(ctx, stepRouter, models.StepStatusFailed, "Intent classification failed")
		return nil, err
	}

	executor.recordStep(stepRouter, startTime, nil)
	executor.publishStepUpdate(ctx, stepRouter, models.StepStatusCompleted,
		fmt.Sprintf("Classified as %s", classification.Type))

	messageType := classification.Type
	return &models.StatePatch{
		MessageType: &messageType,
		Message:     &models.Message{Text: classification.Reason, Role: models.RoleSystem},
	}, nil
}

func (executor *workflowExecutor) runFeedbackHandler(ctx context.Context) (*models.StatePatch, error) {
	startTime := time.Now()
	executor.publishStepUpdate(ctx, stepFeedback, models.StepStatusProcessing, "Analyzing feedback")

	// the router already replaced the message with its reasoning; that is
	// the message this handler both reads and records
	preHandlerMessage := executor.run.State.Message

	analysis, err := executor.orchestrator.oracle.AnalyzeFeedback(ctx, preHandlerMessage.Text)
	if err != nil {
		executor.recordStep(stepFeedback, startTime, err)
		executor.publishStepUpdate(ctx, stepFeedback, models.StepStatusFailed, "Feedback analysis failed")
		return nil, err
	}

	executor.recordStep(stepFeedback, startTime, nil)
	executor.publishStepUpdate(ctx, stepFeedback, models.StepStatusCompleted,
		fmt.Sprintf("Feedback analyzed (positive: %t)", analysis.IsPositive))

	return &models.StatePatch{
		Feedback: &models.Feedback{
			Text:       preHandlerMessage,
			IsPositive: analysis.IsPositive,
		},
	}, nil
}

func (executor *workflowExecutor) runSupportHandler(ctx context.Context) (*models.StatePatch, error) {
	startTime := time.Now()
	executor.publishStepUpdate(ctx, stepSupport, models.StepStatusProcessing, "Triaging support request")

	analysis, err := executor.orchestrator.oracle.TriageSupport(ctx, executor.run.State.Message.Text)
	if err != nil {
		executor.recordStep(stepSupport, startTime, err)
		executor.publishStepUpdate(ctx, stepSupport, models.StepStatusFailed, "Support triage failed")
		return nil, err
	}

	executor.recordStep(stepSupport, startTime, nil)
	executor.publishStepUpdate(ctx, stepSupport, models.StepStatusCompleted,
		fmt.Sprintf("Triaged as %s", analysis.SupportType))

	// stored verbatim, including the non-matching placeholder branch
	return &models.StatePatch{
		Support: &models.Support{
			SupportType:       analysis.SupportType,
			Bug:               analysis.Bug,
			TechnicalQuestion: analysis.TechnicalQuestion,
		},
	}, nil
}

func (executor *workflowExecutor) runRecommendationHandler(ctx context.Context) (*models.StatePatch, error) {
	startTime := time.Now()
	executor.publishStepUpdate(ctx, stepRecommendation, models.StepStatusProcessing, "Building recommendation")

	products, err := executor.orchestrator.catalog.ListProducts(ctx)
	if err != nil {
		// no recommendation without real catalog context
		executor.recordStep(stepRecommendation, startTime, err)
		executor.publishStepUpdate(ctx, stepRecommendation, models.StepStatusFailed, "Catalog fetch failed")
		return nil, err
	}

	result, err := executor.orchestrator.oracle.RecommendProduct(ctx, executor.run.State.Message.Text, products)
	if err != nil {
		executor.recordStep(stepRecommendation, startTime, err)
		executor.publishStepUpdate(ctx, stepRecommendation, models.StepStatusFailed, "Recommendation failed")
		return nil, err
	}

	executor.recordStep(stepRecommendation, startTime, nil)
	executor.publishStepUpdate(ctx, stepRecommendation, models.StepStatusCompleted,
		fmt.Sprintf("Recommended %s profile", result.Type))

	recommendationType := result.Type
	return &models.StatePatch{
		RecommendationType: &recommendationType,
		Message:            &models.Message{Text: result.Reply, Role: models.RoleSystem},
	}, nil
}

// runOrderHandler is the only node with side effects. Every path out of it —
// no action, oracle failure, placement success, recoverable placement
// failure — yields a well-formed patch; only the catalog fetch is fatal.
func (executor *workflowExecutor) runOrderHandler(ctx context.Context) (*models.StatePatch, OrderOutcome, error) {
	startTime := time.Now()
	executor.publishStepUpdate(ctx, stepOrder, models.StepStatusProcessing, "Processing order request")

	products, err := executor.orchestrator.catalog.ListProducts(ctx)
	if err != nil {
		executor.recordStep(stepOrder, startTime, err)
		executor.publishStepUpdate(ctx, stepOrder, models.StepStatusFailed, "Catalog fetch failed")
		return nil, OrderOutcomeNoAction, err
	}

	action, err := executor.orchestrator.oracle.ExtractOrderAction(ctx, executor.run.State.Message.Text, products)
	if err != nil {
		// swallowed: the customer gets an apology, the run still terminates cleanly
		executor.logger.WithError(err).Error("order action extraction failed")
		executor.recordStep(stepOrder, startTime, err)
		executor.publishStepUpdate(ctx, stepOrder, models.StepStatusFailed, "Order extraction failed")
		return &models.StatePatch{
			Message: &models.Message{Text: orderApologyReply, Role: models.RoleSystem},
		}, OrderOutcomeOracleFailed, nil
	}

	if action.Function != "placeOrder" {
		executor.recordStep(stepOrder, startTime, nil)
		executor.publishStepUpdate(ctx, stepOrder, models.StepStatusCompleted, "No order action recognized")
		return &models.StatePatch{
			Message: &models.Message{Text: action.Reply, Role: models.RoleSystem},
		}, OrderOutcomeNoAction, nil
	}

	record, placeErr := executor.placeOrder(ctx, action)
	if placeErr != nil {
		cause := models.UserFacingMessage(placeErr)
		executor.recordStep(stepOrder, startTime, placeErr)
		executor.publishStepUpdate(ctx, stepOrder, models.StepStatusCompleted,
			fmt.Sprintf("Order rejected: %s", cause))

		return &models.StatePatch{
			Order: &models.Order{
				Product:  action.Parameters.ProductID,
				Quantity: action.Parameters.Quantity,
				Total:    0,
				Status:   fmt.Sprintf("Failed to place order: %s", cause),
			},
			Message: &models.Message{
				Text: fmt.Sprintf("%s\nError: %s", action.Reply, cause),
				Role: models.RoleSystem,
			},
		}, OrderOutcomeRejected, nil
	}

	executor.recordStep(stepOrder, startTime, nil)
	executor.publishStepUpdate(ctx, stepOrder, models.StepStatusCompleted,
		fmt.Sprintf("Order %s placed", record.ID))

	return &models.StatePatch{
		Order: &models.Order{
			Product:  action.Parameters.ProductID,
			Quantity: action.Parameters.Quantity,
			Total:    record.Total,
			Status:   fmt.Sprintf("Order placed successfully! Order ID: %s", record.ID),
		},
		Message: &models.Message{Text: action.Reply, Role: models.RoleSystem},
	}, OrderOutcomePlaced, nil
}

func (executor *workflowExecutor) placeOrder(ctx context.Context, action *OrderAction) (*models.OrderRecord, error) {
	if action.Parameters.ProductID == "" {
		return nil, models.NewValidationError("INVALID_ORDER_PARAMS", "Invalid parameters")
	}
	if action.Parameters.Quantity <= 0 {
		return nil, models.NewValidationError("INVALID_ORDER_QUANTITY", "Quantity must be positive")
	}

	return executor.orchestrator.catalog.PlaceOrder(ctx, action.Parameters.ProductID, action.Parameters.Quantity)
}

func (executor *workflowExecutor) recordStep(stepName string, startTime time.Time, err error) {
	status := string(models.StepStatusCompleted)
	if err != nil {
		status = string(models.StepStatusFailed)
	}

	duration := time.Since(startTime)
	executor.run.UpdateStepStats(stepName, models.StepStats{
		Name:      stepName,
		Duration:  duration,
		Status:    status,
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	executor.logger.LogStep(executor.run.ID, stepName, "execute", duration, nil, err)
}

func (executor *workflowExecutor) publishStepUpdate(ctx context.Context, step string, status models.StepStatus, message string) {
	update := &models.StepUpdate{
		RunID:     executor.run.ID,
		RequestID: executor.run.RequestID,
		Step:      step,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}

	if err := executor.orchestrator.runs.PublishStepUpdate(ctx, update); err != nil {
		executor.logger.WithError(err).Warn("Failed to publish step update", "step", step)
	}
}

// GetRunStatus returns an in-flight run if present, falling back to the store.
func (orchestrator *Orchestrator) GetRunStatus(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	if run, exists := orchestrator.activeRuns.Load(runID); exists {
		return run.(*models.WorkflowRun), nil
	}

	return orchestrator.runs.GetRun(ctx, runID)
}

func (orchestrator *Orchestrator) GetActiveRunCount() int {
	count := 0
	orchestrator.activeRuns.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) error {
	services := map[string]func() error{
		"oracle":  func() error { return orchestrator.oracle.HealthCheck(ctx) },
		"catalog": func() error { return orchestrator.catalog.HealthCheck(ctx) },
		"state":   func() error { return orchestrator.runs.HealthCheck(ctx) },
	}

	for serviceName, healthCheck := range services {
		if err := healthCheck(); err != nil {
			return fmt.Errorf("service %s health check failed: %w", serviceName, err)
		}
	}

	return nil
}

func (orchestrator *Orchestrator) GetStats() map[string]interface{} {
	uptime := time.Since(orchestrator.startTime)

	return map[string]interface{}{
		"service":        "workflow_orchestrator",
		"uptime_seconds": uptime.Seconds(),
		"active_runs":    orchestrator.GetActiveRunCount(),
		"handlers":       []string{stepFeedback, stepSupport, stepRecommendation, stepOrder},
		"intents":        models.KnownMessageTypes,
	}
}

func (orchestrator *Orchestrator) Close() error {
	orchestrator.logger.Info("Orchestrator shutting down")

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			if activeCount := orchestrator.GetActiveRunCount(); activeCount > 0 {
				orchestrator.logger.Warn("Timeout waiting for runs to complete", "active_runs", activeCount)
			}
			return nil
		case <-ticker.C:
			if orchestrator.GetActiveRunCount() == 0 {
				orchestrator.logger.Info("All runs completed, orchestrator closed")
				return nil
			}
		}
	}
}
