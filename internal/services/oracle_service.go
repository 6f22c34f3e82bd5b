package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
)

// IntentClassification is the router's structured verdict on a message.
type IntentClassification struct {
	Type   models.MessageType `json:"type"`
	Reason string             `json:"reason"`
}

type FeedbackAnalysis struct {
	IsPositive bool   `json:"isPositive"`
	Text       string `json:"text"`
	Reason     string `json:"reason"`
}

type SupportAnalysis struct {
	SupportType       models.SupportType        `json:"supportType"`
	Bug               *models.BugReport         `json:"bug,omitempty"`
	TechnicalQuestion *models.TechnicalQuestion `json:"technicalQuestion,omitempty"`
	Reason            string                    `json:"reason"`
}

type RecommendationResult struct {
	Type   models.RecommendationType `json:"type"`
	Reply  string                    `json:"reply"`
	Reason string                    `json:"reason"`
}

type OrderParameters struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderAction is the classifier's best-effort guess at an order instruction.
// Function other than "placeOrder" means no order action was recognized.
type OrderAction struct {
	Function   string          `json:"function"`
	Parameters OrderParameters `json:"parameters"`
	Reply      string          `json:"reply"`
	Reason     string          `json:"reason"`
}

// GeminiService is the classification oracle adapter. Every call sends a
// response schema so the model replies with JSON conforming to the step's
// contract; decoding and enum validation happen here, never in the workflow.
type GeminiService struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker
	config  config.GeminiConfig
	logger  *logger.Logger
}

type structuredRequest struct {
	SystemRole  string
	Prompt      string
	Schema      *genai.Schema
	Temperature float32
	MaxTokens   int32
}

func NewGeminiService(cfg config.GeminiConfig, log *logger.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key required")
	}

	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	service := &GeminiService{
		client:  client,
		breaker: breaker,
		config:  cfg,
		logger:  log,
	}

	log.Info("Oracle service initialized",
		"model", cfg.Model,
		"max_tokens", cfg.MaxTokens,
		"max_retries", cfg.MaxRetries)

	return service, nil
}

// ClassifyMessage routes the incoming text into exactly one intent category.
func (service *GeminiService) ClassifyMessage(ctx context.Context, text string) (*IntentClassification, error) {
	startTime := time.Now()

	var result IntentClassification
	req := &structuredRequest{
		SystemRole: "You are an expert message classifier for a coffee shop customer assistant. " +
			"You are given a customer message and assign it exactly one of the available labels.",
		Prompt:      service.buildClassificationPrompt(text),
		Schema:      intentSchema,
		Temperature: 0.0,
		MaxTokens:   512,
	}

	if err := service.generateStructured(ctx, "classify_message", req, &result); err != nil {
		return nil, err
	}

	if !models.IsKnownMessageType(result.Type) {
		return nil, models.NewOracleError("ORACLE_BAD_INTENT",
			fmt.Sprintf("classifier returned unknown intent %q", result.Type))
	}

	service.logger.LogService("gemini", "classify_message", time.Since(startTime), map[string]interface{}{
		"intent": result.Type,
	}, nil)

	return &result, nil
}

func (service *GeminiService) AnalyzeFeedback(ctx context.Context, text string) (*FeedbackAnalysis, error) {
	startTime := time.Now()

	var result FeedbackAnalysis
	req := &structuredRequest{
		SystemRole: "You are a customer feedback analyst for a coffee shop. " +
			"Decide whether the feedback is positive and restate it briefly.",
		Prompt:      service.buildFeedbackPrompt(text),
		Schema:      feedbackSchema,
		Temperature: 0.0,
		MaxTokens:   512,
	}

	if err := service.generateStructured(ctx, "analyze_feedback", req, &result); err != nil {
		return nil, err
	}

	service.logger.LogService("gemini", "analyze_feedback", time.Since(startTime), map[string]interface{}{
		"is_positive": result.IsPositive,
	}, nil)

	return &result, nil
}

func (service *GeminiService) TriageSupport(ctx context.Context, text string) (*SupportAnalysis, error) {
	startTime := time.Now()

	var result SupportAnalysis
	req := &structuredRequest{
		SystemRole: "You are a support triage specialist for a coffee shop app. " +
			"Classify the request as a bug report or a technical question and fill in the matching details.",
		Prompt:      service.buildSupportPrompt(text),
		Schema:      supportSchema,
		Temperature: 0.0,
		MaxTokens:   1024,
	}

	if err := service.generateStructured(ctx, "triage_support", req, &result); err != nil {
		return nil, err
	}

	if result.SupportType != models.SupportTypeBug && result.SupportType != models.SupportTypeTechnicalQuestion {
		return nil, models.NewOracleError("ORACLE_BAD_SUPPORT_TYPE",
			fmt.Sprintf("triage returned unknown support type %q", result.SupportType))
	}

	service.logger.LogService("gemini", "triage_support", time.Since(startTime), map[string]interface{}{
		"support_type": result.SupportType,
	}, nil)

	return &result, nil
}

// RecommendProduct grounds the model in the live catalog so it can only
// recommend products that actually exist.
func (service *GeminiService) RecommendProduct(ctx context.Context, text string, products []models.Product) (*RecommendationResult, error) {
	startTime := time.Now()

	var result RecommendationResult
	req := &structuredRequest{
		SystemRole: "You are a coffee sommelier recommending drinks from the shop's real catalog. " +
			"Never invent products that are not in the catalog.",
		Prompt:      service.buildRecommendationPrompt(text, products),
		Schema:      recommendationSchema,
		Temperature: 0.3,
		MaxTokens:   1024,
	}

	if err := service.generateStructured(ctx, "recommend_product", req, &result); err != nil {
		return nil, err
	}

	switch result.Type {
	case models.RecommendationLight, models.RecommendationMedium, models.RecommendationHeavy:
	default:
		return nil, models.NewOracleError("ORACLE_BAD_RECOMMENDATION",
			fmt.Sprintf("recommender returned unknown roast class %q", result.Type))
	}

	service.logger.LogService("gemini", "recommend_product", time.Since(startTime), map[string]interface{}{
		"recommendation_type": result.Type,
		"catalog_size":        len(products),
	}, nil)

	return &result, nil
}

// ExtractOrderAction asks the model to map the message onto a placeOrder call
// against the real catalog. A function value other than "placeOrder" is a
// valid answer meaning no order was requested; the order handler decides what
// to do with it.
func (service *GeminiService) ExtractOrderAction(ctx context.Context, text string, products []models.Product) (*OrderAction, error) {
	startTime := time.Now()

	var result OrderAction
	req := &structuredRequest{
		SystemRole: "You are an order-taking assistant for a coffee shop. " +
			"Extract the product and quantity the customer wants from the catalog, or say you could not.",
		Prompt:      service.buildOrderPrompt(text, products),
		Schema:      orderSchema,
		Temperature: 0.0,
		MaxTokens:   1024,
	}

	if err := service.generateStructured(ctx, "extract_order_action", req, &result); err != nil {
		return nil, err
	}

	service.logger.LogService("gemini", "extract_order_action", time.Since(startTime), map[string]interface{}{
		"function":   result.Function,
		"product_id": result.Parameters.ProductID,
		"quantity":   result.Parameters.Quantity,
	}, nil)

	return &result, nil
}

func (service *GeminiService) generateStructured(ctx context.Context, operation string, req *structuredRequest, target interface{}) error {
	var content string
	var err error

	for attempt := 1; attempt <= service.config.MaxRetries; attempt++ {
		content, err = service.makeStructuredRequest(ctx, req)
		if err == nil {
			break
		}

		if errors.Is(err, gobreaker.ErrOpenState) {
			break
		}

		if attempt < service.config.MaxRetries {
			service.logger.WithFields(logger.Fields{
				"operation":   operation,
				"attempt":     attempt,
				"max_retries": service.config.MaxRetries,
				"error":       err,
			}).Warn("oracle call failed, retrying")

			select {
			case <-time.After(service.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return models.NewOracleError("ORACLE_TIMEOUT", "classification call timed out").WithCause(ctx.Err())
			}
		}
	}

	if err != nil {
		service.logger.LogService("gemini", operation, 0, nil, err)
		return models.NewOracleError("ORACLE_CALL_FAILED", "classification call failed").WithCause(err)
	}

	if err := decodeStructured(content, target); err != nil {
		return models.NewOracleError("ORACLE_BAD_OUTPUT", "classification output did not match schema").WithCause(err)
	}

	return nil
}

func (service *GeminiService) makeStructuredRequest(ctx context.Context, req *structuredRequest) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}

	if req.SystemRole != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemRole, genai.RoleUser)
	}

	temperature := req.Temperature
	genConfig.Temperature = &temperature

	if req.MaxTokens != 0 {
		genConfig.MaxOutputTokens = req.MaxTokens
	} else {
		genConfig.MaxOutputTokens = int32(service.config.MaxTokens)
	}

	raw, err := service.breaker.Execute(func() (interface{}, error) {
		result, err := service.client.Models.GenerateContent(genCtx, service.config.Model, genai.Text(req.Prompt), genConfig)
		if err != nil {
			return nil, fmt.Errorf("gemini request failed: %w", err)
		}

		if len(result.Candidates) == 0 {
			return nil, errors.New("no response candidates generated")
		}

		candidate := result.Candidates[0]
		text := ""
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				text += part.Text
			}
		}

		if text == "" {
			return nil, errors.New("empty response content")
		}

		return text, nil
	})
	if err != nil {
		return "", err
	}

	return raw.(string), nil
}

// decodeStructured strips markdown fences some models still wrap around JSON
// mode output, then unmarshals into the step's result type.
func decodeStructured(content string, target interface{}) error {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}

func (service *GeminiService) buildClassificationPrompt(text string) string {
	return fmt.Sprintf(`Classify the following customer message into exactly one category.

Customer message:
"%s"

Categories:
- Order: the customer wants to buy or order a product
- Feedback: the customer is sharing an opinion or experience, good or bad
- Recommendation: the customer asks what product they should try
- Support: the customer reports a problem with the app or asks a technical question
- Question: anything else, including greetings and unclear messages

Return the category and a short reason for your choice.`, text)
}

func (service *GeminiService) buildFeedbackPrompt(text string) string {
	return fmt.Sprintf(`Analyze the following customer feedback.

Feedback:
"%s"

Decide whether the feedback is positive, restate the feedback in one short
sentence, and give the reason for your verdict.`, text)
}

func (service *GeminiService) buildSupportPrompt(text string) string {
	return fmt.Sprintf(`Triage the following support request.

Request:
"%s"

If the customer describes something broken or misbehaving, classify it as Bug
and describe it with a severity of low, medium or high.
If the customer asks how something works, classify it as TechnicalQuestion,
answer if you can, and set answerFound accordingly. Include links only if you
are certain they are real.`, text)
}

func (service *GeminiService) buildRecommendationPrompt(text string, products []models.Product) string {
	return fmt.Sprintf(`A customer is asking for a product recommendation.

Customer message:
"%s"

Catalog:
%s

Recommend products from the catalog above, classify the overall taste profile
the customer is after as Light, Medium or Heavy, and write a short friendly
reply naming the recommended products.`, text, formatProductContext(products))
}

func (service *GeminiService) buildOrderPrompt(text string, products []models.Product) string {
	return fmt.Sprintf(`A customer may be trying to place an order.

Customer message:
"%s"

Catalog:
%s

If the message clearly asks to order a product from the catalog, set function
to "placeOrder" and fill in the product id and quantity. If it does not, set
function to "none" and leave the parameters empty. Always write a short reply
to the customer describing what you did or why you could not.`, text, formatProductContext(products))
}

func formatProductContext(products []models.Product) string {
	if len(products) == 0 {
		return "(empty catalog)"
	}

	var builder strings.Builder
	for _, product := range products {
		fmt.Fprintf(&builder, "- id=%s | %s | $%.2f | %s | %s\n",
			product.ID, product.Name, product.Price, product.Category, product.Description)
	}
	return builder.String()
}

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"type": {
			Type: genai.TypeString,
			Enum: []string{"Order", "Feedback", "Recommendation", "Question", "Support"},
		},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"type", "reason"},
}

var feedbackSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isPositive": {Type: genai.TypeBoolean},
		"text":       {Type: genai.TypeString},
		"reason":     {Type: genai.TypeString},
	},
	Required: []string{"isPositive", "text", "reason"},
}

var supportSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"supportType": {
			Type: genai.TypeString,
			Enum: []string{"Bug", "TechnicalQuestion"},
		},
		"bug": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"description": {Type: genai.TypeString},
				"severity":    {Type: genai.TypeString},
			},
		},
		"technicalQuestion": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question":    {Type: genai.TypeString},
				"answer":      {Type: genai.TypeString},
				"links":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"answerFound": {Type: genai.TypeBoolean},
			},
		},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"supportType", "reason"},
}

var recommendationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"type": {
			Type: genai.TypeString,
			Enum: []string{"Light", "Medium", "Heavy"},
		},
		"reply":  {Type: genai.TypeString},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"type", "reply", "reason"},
}

var orderSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"function": {Type: genai.TypeString},
		"parameters": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"productId": {Type: genai.TypeString},
				"quantity":  {Type: genai.TypeInteger},
			},
		},
		"reply":  {Type: genai.TypeString},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"function", "reply", "reason"},
}

func (service *GeminiService) HealthCheck(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var result IntentClassification
	req := &structuredRequest{
		Prompt:      service.buildClassificationPrompt("hello"),
		Schema:      intentSchema,
		Temperature: 0.0,
		MaxTokens:   256,
	}

	if err := service.generateStructured(testCtx, "health_check", req, &result); err != nil {
		return fmt.Errorf("oracle health check failed: %w", err)
	}

	return nil
}

func (service *GeminiService) Close() error {
	// request/response client, nothing to tear down
	service.logger.Info("Oracle service closed")
	return nil
}
