package services

import (
	"strings"
	"testing"

	"brewmate-engine/internal/models"
)

func TestDecodeStructuredPlainJSON(t *testing.T) {
	var result IntentClassification
	content := `{"type": "Order", "reason": "Customer wants to buy coffee"}`

	if err := decodeStructured(content, &result); err != nil {
		t.Fatalf("decodeStructured failed: %v", err)
	}
	if result.Type != models.MessageTypeOrder {
		t.Errorf("expected Order, got %q", result.Type)
	}
}

func TestDecodeStructuredStripsJSONFence(t *testing.T) {
	var result FeedbackAnalysis
	content := "```json\n{\"isPositive\": true, \"text\": \"great coffee\", \"reason\": \"praise\"}\n```"

	if err := decodeStructured(content, &result); err != nil {
		t.Fatalf("decodeStructured failed: %v", err)
	}
	if !result.IsPositive {
		t.Error("expected positive feedback")
	}
}

func TestDecodeStructuredStripsBareFence(t *testing.T) {
	var result OrderAction
	content := "```\n{\"function\": \"placeOrder\", \"parameters\": {\"productId\": \"ABC123\", \"quantity\": 2}, \"reply\": \"ok\", \"reason\": \"clear order\"}\n```"

	if err := decodeStructured(content, &result); err != nil {
		t.Fatalf("decodeStructured failed: %v", err)
	}
	if result.Function != "placeOrder" || result.Parameters.Quantity != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDecodeStructuredRejectsGarbage(t *testing.T) {
	var result IntentClassification
	if err := decodeStructured("not json at all", &result); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFormatProductContext(t *testing.T) {
	products := []models.Product{
		{ID: "ABC123", Name: "House Blend", Price: 10, Category: "Medium Roast", Description: "smooth"},
	}

	context := formatProductContext(products)
	if !strings.Contains(context, "id=ABC123") || !strings.Contains(context, "$10.00") {
		t.Errorf("unexpected catalog context: %q", context)
	}

	if got := formatProductContext(nil); got != "(empty catalog)" {
		t.Errorf("expected empty catalog marker, got %q", got)
	}
}

func TestOrderPromptMentionsCatalog(t *testing.T) {
	service := &GeminiService{}
	products := []models.Product{{ID: "ETH201", Name: "Ethiopia Yirgacheffe", Price: 14.5}}

	prompt := service.buildOrderPrompt("two bags of the Ethiopian please", products)
	if !strings.Contains(prompt, "ETH201") {
		t.Error("expected catalog entries in order prompt")
	}
	if !strings.Contains(prompt, "placeOrder") {
		t.Error("expected placeOrder instruction in order prompt")
	}
}
