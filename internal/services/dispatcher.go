package services

import "brewmate-engine/internal/models"

// NextStep is the closed set of edges out of the intent router. There are no
// string edge names anywhere; the executor switches exhaustively on this.
type NextStep int

const (
	StepEnd NextStep = iota
	StepRecommendation
	StepFeedback
	StepSupport
	StepOrder
)

func (step NextStep) String() string {
	switch step {
	case StepRecommendation:
		return "recommendation"
	case StepFeedback:
		return "feedback"
	case StepSupport:
		return "support"
	case StepOrder:
		return "order"
	default:
		return "end"
	}
}

// ResolveNextStep maps the classified message type to the next workflow node.
// It is total: Question, unset and anything unrecognized all terminate the
// run, never error.
func ResolveNextStep(messageType models.MessageType) NextStep {
	switch messageType {
	case models.MessageTypeRecommendation:
		return StepRecommendation
	case models.MessageTypeFeedback:
		return StepFeedback
	case models.MessageTypeSupport:
		return StepSupport
	case models.MessageTypeOrder:
		return StepOrder
	default:
		return StepEnd
	}
}
