package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleHuman  MessageRole = "human"
	RoleSystem MessageRole = "system"
)

// Message is immutable once produced; the state only ever holds the latest one.
type Message struct {
	Text   string                 `json:"text"`
	Role   MessageRole            `json:"role"`
	Memory map[string]interface{} `json:"memory,omitempty"`
}

type MessageType string

const (
	MessageTypeRecommendation MessageType = "Recommendation"
	MessageTypeFeedback       MessageType = "Feedback"
	MessageTypeSupport        MessageType = "Support"
	MessageTypeOrder          MessageType = "Order"
	MessageTypeQuestion       MessageType = "Question"
)

// KnownMessageTypes is the closed set the intent classifier may return.
var KnownMessageTypes = []MessageType{
	MessageTypeOrder,
	MessageTypeFeedback,
	MessageTypeRecommendation,
	MessageTypeQuestion,
	MessageTypeSupport,
}

func IsKnownMessageType(t MessageType) bool {
	for _, known := range KnownMessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

type RecommendationType string

const (
	RecommendationLight  RecommendationType = "Light"
	RecommendationMedium RecommendationType = "Medium"
	RecommendationHeavy  RecommendationType = "Heavy"
)

type Feedback struct {
	Text       Message `json:"text"`
	IsPositive bool    `json:"isPositive"`
}

type SupportType string

const (
	SupportTypeBug               SupportType = "Bug"
	SupportTypeTechnicalQuestion SupportType = "TechnicalQuestion"
)

type BugReport struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type TechnicalQuestion struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer,omitempty"`
	Links       []string `json:"links"`
	AnswerFound bool     `json:"answerFound"`
}

// Support carries whatever the triage classifier returned. Only the branch
// matching SupportType is expected to be meaningful; the other may arrive as
// an empty placeholder and is stored as-is.
type Support struct {
	SupportType       SupportType        `json:"supportType"`
	Bug               *BugReport         `json:"bug,omitempty"`
	TechnicalQuestion *TechnicalQuestion `json:"technicalQuestion,omitempty"`
}

type Order struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
	Status   string  `json:"status"`
}

// WorkflowState is the per-request state threaded through the router and at
// most one handler. At most one of the handler-owned fields (feedback,
// support, order, recommendationType) is populated per run.
type WorkflowState struct {
	Message            Message            `json:"message"`
	MessageType        MessageType        `json:"messageType,omitempty"`
	RecommendationType RecommendationType `json:"recommendationType,omitempty"`
	Feedback           *Feedback          `json:"feedback,omitempty"`
	Support            *Support           `json:"support,omitempty"`
	Order              *Order             `json:"order,omitempty"`
}

func NewWorkflowState(text string) *WorkflowState {
	return &WorkflowState{
		Message: Message{Text: text, Role: RoleHuman},
	}
}

// HandlerFieldCount reports how many handler-owned fields are populated.
func (s *WorkflowState) HandlerFieldCount() int {
	count := 0
	if s.RecommendationType != "" {
		count++
	}
	if s.Feedback != nil {
		count++
	}
	if s.Support != nil {
		count++
	}
	if s.Order != nil {
		count++
	}
	return count
}

// StatePatch is a partial state update returned by a workflow node. The
// executor merges patches into the run state; nodes never mutate shared
// state directly.
type StatePatch struct {
	Message            *Message
	MessageType        *MessageType
	RecommendationType *RecommendationType
	Feedback           *Feedback
	Support            *Support
	Order              *Order
}

func (p *StatePatch) Apply(state *WorkflowState) {
	if p == nil {
		return
	}
	if p.Message != nil {
		state.Message = *p.Message
	}
	if p.MessageType != nil {
		state.MessageType = *p.MessageType
	}
	if p.RecommendationType != nil {
		state.RecommendationType = *p.RecommendationType
	}
	if p.Feedback != nil {
		state.Feedback = p.Feedback
	}
	if p.Support != nil {
		state.Support = p.Support
	}
	if p.Order != nil {
		state.Order = p.Order
	}
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type StepStats struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

// WorkflowRun is the envelope around one router+handler pass: identity,
// timing, per-step stats and the terminal state. The HTTP layer returns only
// the state; the envelope is what gets persisted for later inspection.
type WorkflowRun struct {
	ID        string               `json:"id"`
	RequestID string               `json:"request_id"`
	Status    RunStatus            `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`
	Steps     map[string]StepStats `json:"steps,omitempty"`
	Error     string               `json:"error,omitempty"`
	State     *WorkflowState       `json:"state"`
}

func NewWorkflowRun(text string) *WorkflowRun {
	return &WorkflowRun{
		ID:        uuid.New().String(),
		RequestID: GenerateRequestID(),
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]StepStats),
		State:     NewWorkflowState(text),
	}
}

func (run *WorkflowRun) MarkCompleted() {
	run.Status = RunStatusCompleted
	now := time.Now()
	run.EndTime = &now
}

func (run *WorkflowRun) MarkFailed(err error) {
	run.Status = RunStatusFailed
	now := time.Now()
	run.EndTime = &now
	if err != nil {
		run.Error = err.Error()
	}
}

func (run *WorkflowRun) UpdateStepStats(stepName string, stats StepStats) {
	run.Steps[stepName] = stats
}

func (run *WorkflowRun) GetDuration() time.Duration {
	if run.EndTime != nil {
		return run.EndTime.Sub(run.StartTime)
	}
	return time.Since(run.StartTime)
}

func GenerateRequestID() string {
	return uuid.New().String()
}

type StepStatus string

const (
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// StepUpdate is the progress event published to the run's update stream while
// the workflow advances node by node.
type StepUpdate struct {
	RunID     string                 `json:"run_id"`
	RequestID string                 `json:"request_id"`
	Step      string                 `json:"step"`
	Status    StepStatus             `json:"status"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
