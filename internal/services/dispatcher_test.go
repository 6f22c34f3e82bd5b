package services_test

import (
	"testing"

	"brewmate-engine/internal/models"
	"brewmate-engine/internal/services"
)

func TestResolveNextStep(t *testing.T) {
	cases := []struct {
		name        string
		messageType models.MessageType
		expected    services.NextStep
	}{
		{"order", models.MessageTypeOrder, services.StepOrder},
		{"feedback", models.MessageTypeFeedback, services.StepFeedback},
		{"support", models.MessageTypeSupport, services.StepSupport},
		{"recommendation", models.MessageTypeRecommendation, services.StepRecommendation},
		{"question", models.MessageTypeQuestion, services.StepEnd},
		{"unset", models.MessageType(""), services.StepEnd},
		{"unrecognized", models.MessageType("Banter"), services.StepEnd},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.ResolveNextStep(tc.messageType); got != tc.expected {
				t.Errorf("ResolveNextStep(%q) = %v, want %v", tc.messageType, got, tc.expected)
			}
		})
	}
}

func TestResolveNextStepIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if got := services.ResolveNextStep(models.MessageTypeOrder); got != services.StepOrder {
			t.Fatalf("iteration %d: got %v", i, got)
		}
	}
}

func TestNextStepString(t *testing.T) {
	cases := map[services.NextStep]string{
		services.StepEnd:            "end",
		services.StepOrder:          "order",
		services.StepFeedback:       "feedback",
		services.StepSupport:        "support",
		services.StepRecommendation: "recommendation",
	}

	for step, expected := range cases {
		if got := step.String(); got != expected {
			t.Errorf("String() = %q, want %q", got, expected)
		}
	}
}
