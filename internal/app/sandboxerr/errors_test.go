package sandboxerr

import (
	"errors"
	"net/http"
	"testing"
)

func TestWrapUnwrapAndExtract(t *testing.T) {
	base := errors.New("boom")
	wrapped := DatabaseError("insert bank_account", base)

	if !IsServiceError(wrapped) {
		t.Fatal("expected IsServiceError true")
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("expected self-equality")
	}
	if !errors.Is(errors.Unwrap(wrapped), base) {
		t.Fatal("expected Unwrap to return base error")
	}
	if GetHTTPStatus(wrapped) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", GetHTTPStatus(wrapped))
	}
}

func TestGetHTTPStatusDefaultsTo500(t *testing.T) {
	if GetHTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Error("expected default 500 for non-ServiceError")
	}
}

func TestNotFoundDetails(t *testing.T) {
	err := NotFound("bank_account", "42")
	if err.Details["id"] != "42" {
		t.Errorf("expected id detail 42, got %v", err.Details["id"])
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", err.HTTPStatus)
	}
}
