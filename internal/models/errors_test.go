package models_test

import (
	"errors"
	"fmt"
	"testing"

	"brewmate-engine/internal/models"
)

func TestAppErrorMessage(t *testing.T) {
	err := models.NewStoreError("ORDER_INSERT_FAILED", "Failed to persist order")
	if got := err.Error(); got != "ORDER_INSERT_FAILED: Failed to persist order" {
		t.Errorf("unexpected error string: %q", got)
	}

	wrapped := err.WithCause(errors.New("connection reset"))
	if got := wrapped.Error(); got != "ORDER_INSERT_FAILED: Failed to persist order: connection reset" {
		t.Errorf("unexpected wrapped error string: %q", got)
	}
}

func TestWithCauseDoesNotMutateOriginal(t *testing.T) {
	base := models.NewOracleError("ORACLE_CALL_FAILED", "call failed")
	wrapped := base.WithCause(errors.New("boom"))

	if base.Cause != nil {
		t.Error("WithCause mutated the original error")
	}
	if wrapped.Cause == nil {
		t.Error("WithCause dropped the cause")
	}
	if !errors.Is(wrapped, base) {
		t.Error("copy should still match its origin under errors.Is")
	}
}

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	withMeta := models.ErrProductNotFound.WithMetadata("product_id", "ABC123")

	if models.ErrProductNotFound.Metadata != nil {
		t.Error("WithMetadata mutated the sentinel")
	}
	if withMeta.Metadata["product_id"] != "ABC123" {
		t.Errorf("metadata not recorded: %+v", withMeta.Metadata)
	}
}

func TestSentinelsSurviveCopies(t *testing.T) {
	err := models.ErrProductNotFound.WithMetadata("product_id", "X")
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Error("metadata copy should still match ErrProductNotFound")
	}

	wrapped := fmt.Errorf("place order: %w", models.ErrRunNotFound.WithMetadata("run_id", "r1"))
	if !errors.Is(wrapped, models.ErrRunNotFound) {
		t.Error("wrapped copy should still match ErrRunNotFound")
	}
}

func TestErrorTypePredicates(t *testing.T) {
	oracleErr := models.NewOracleError("ORACLE_BAD_OUTPUT", "bad output")
	storeErr := models.NewStoreError("CATALOG_QUERY_FAILED", "query failed")
	validationErr := models.NewValidationError("INVALID_ORDER_QUANTITY", "quantity must be positive")

	if !models.IsOracleError(oracleErr) || models.IsOracleError(storeErr) {
		t.Error("IsOracleError misclassified")
	}
	if !models.IsStoreError(storeErr) || models.IsStoreError(validationErr) {
		t.Error("IsStoreError misclassified")
	}
	if !models.IsValidationError(validationErr) || models.IsValidationError(oracleErr) {
		t.Error("IsValidationError misclassified")
	}

	wrapped := fmt.Errorf("handler: %w", oracleErr)
	if !models.IsOracleError(wrapped) {
		t.Error("predicates must see through wrapping")
	}
}

func TestUserFacingMessage(t *testing.T) {
	appErr := models.NewValidationError("INVALID_ORDER_PARAMS", "Invalid parameters").WithCause(errors.New("internal detail"))
	if got := models.UserFacingMessage(appErr); got != "Invalid parameters" {
		t.Errorf("expected clean message, got %q", got)
	}

	plain := errors.New("plain failure")
	if got := models.UserFacingMessage(plain); got != "plain failure" {
		t.Errorf("expected raw text fallback, got %q", got)
	}
}
