package models_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"brewmate-engine/internal/models"
)

func TestNewWorkflowState(t *testing.T) {
	state := models.NewWorkflowState("hello there")

	if state.Message.Text != "hello there" {
		t.Errorf("unexpected message text: %q", state.Message.Text)
	}
	if state.Message.Role != models.RoleHuman {
		t.Errorf("expected human role, got %q", state.Message.Role)
	}
	if count := state.HandlerFieldCount(); count != 0 {
		t.Errorf("fresh state must have no handler fields, got %d", count)
	}
}

func TestStatePatchApply(t *testing.T) {
	state := models.NewWorkflowState("original")

	messageType := models.MessageTypeFeedback
	patch := &models.StatePatch{
		Message:     &models.Message{Text: "router reasoning", Role: models.RoleSystem},
		MessageType: &messageType,
	}
	patch.Apply(state)

	if state.Message.Text != "router reasoning" {
		t.Errorf("message not replaced: %q", state.Message.Text)
	}
	if state.MessageType != models.MessageTypeFeedback {
		t.Errorf("message type not set: %q", state.MessageType)
	}

	// empty patch leaves everything alone
	(&models.StatePatch{}).Apply(state)
	if state.Message.Text != "router reasoning" || state.MessageType != models.MessageTypeFeedback {
		t.Error("empty patch must not change state")
	}

	// nil patch is a no-op, not a panic
	var nilPatch *models.StatePatch
	nilPatch.Apply(state)
}

func TestStatePatchApplyHandlerFields(t *testing.T) {
	state := models.NewWorkflowState("msg")

	patch := &models.StatePatch{
		Order: &models.Order{Product: "ABC123", Quantity: 2, Total: 20, Status: "ok"},
	}
	patch.Apply(state)

	if state.Order == nil || state.Order.Total != 20 {
		t.Errorf("order not applied: %+v", state.Order)
	}
	if count := state.HandlerFieldCount(); count != 1 {
		t.Errorf("expected one handler field, got %d", count)
	}
}

func TestWorkflowStateJSONShape(t *testing.T) {
	state := models.NewWorkflowState("hi")
	state.MessageType = models.MessageTypeOrder
	state.Order = &models.Order{Product: "ABC123", Quantity: 2, Total: 20, Status: "placed"}

	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	serialized := string(raw)
	for _, key := range []string{`"messageType"`, `"order"`, `"quantity"`, `"total"`} {
		if !strings.Contains(serialized, key) {
			t.Errorf("expected key %s in %s", key, serialized)
		}
	}
	for _, absent := range []string{`"feedback"`, `"support"`, `"recommendationType"`} {
		if strings.Contains(serialized, absent) {
			t.Errorf("unpopulated field %s must be omitted: %s", absent, serialized)
		}
	}
}

func TestIsKnownMessageType(t *testing.T) {
	for _, known := range models.KnownMessageTypes {
		if !models.IsKnownMessageType(known) {
			t.Errorf("%q should be known", known)
		}
	}
	if models.IsKnownMessageType("Banter") {
		t.Error("Banter should not be known")
	}
	if models.IsKnownMessageType("") {
		t.Error("empty type should not be known")
	}
}

func TestWorkflowRunLifecycle(t *testing.T) {
	run := models.NewWorkflowRun("some message")

	if run.ID == "" || run.RequestID == "" {
		t.Fatal("run identity not generated")
	}
	if run.Status != models.RunStatusPending {
		t.Errorf("expected pending, got %q", run.Status)
	}
	if run.State == nil || run.State.Message.Text != "some message" {
		t.Errorf("state not initialized: %+v", run.State)
	}

	run.MarkCompleted()
	if run.Status != models.RunStatusCompleted || run.EndTime == nil {
		t.Errorf("completion not recorded: %+v", run)
	}
	if run.GetDuration() < 0 {
		t.Error("negative duration")
	}

	failed := models.NewWorkflowRun("other")
	failed.MarkFailed(errors.New("router exploded"))
	if failed.Status != models.RunStatusFailed {
		t.Errorf("expected failed, got %q", failed.Status)
	}
	if failed.Error != "router exploded" {
		t.Errorf("error not recorded: %q", failed.Error)
	}
}
