package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"unavailable", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}, true, true},
		{"too many requests", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, true, true},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false},
		{"canceled", context.Canceled, false, false},
		{"other", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		class := ClassifyHTTPError(tc.err)
		if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
			t.Fatalf("%s: unexpected classification %+v", tc.name, class)
		}
	}
}

func TestWrapTemporaryKinds(t *testing.T) {
	temp := WrapTemporary("embed", &HTTPStatusError{StatusCode: http.StatusBadGateway}, nil)
	if !domain.IsKind(temp, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", temp)
	}
	permanent := WrapTemporary("embed", &HTTPStatusError{StatusCode: http.StatusNotFound}, nil)
	if !domain.IsKind(permanent, domain.ErrProvider) {
		t.Fatalf("expected provider kind, got %v", permanent)
	}
}
