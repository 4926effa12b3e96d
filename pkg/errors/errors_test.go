package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "input error",
			category:   CategoryInput,
			code:       CodeEmptyInputSet,
			message:    "bank transaction set is empty",
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "rate error",
			category:   CategoryRate,
			code:       CodeRateUnavailable,
			message:    "no rate",
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryRate, CodeRateUnavailable, "rate missing").
		WithContext("pair", "EUR/USD").
		WithSuggestion("retry later")

	if err.Context["pair"] != "EUR/USD" {
		t.Errorf("expected pair context 'EUR/USD', got %v", err.Context["pair"])
	}

	expected := "rate missing (suggestion: retry later)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestDomainErrorConstructors(t *testing.T) {
	t.Run("RateUnavailable", func(t *testing.T) {
		cause := errors.New("502 bad gateway")
		err := RateUnavailable("2024-01-15", "EUR", "USD", cause)

		if err.Code != CodeRateUnavailable {
			t.Errorf("expected rate_unavailable, got %s", err.Code)
		}
		if err.Context["source_currency"] != "EUR" || err.Context["target_currency"] != "USD" {
			t.Errorf("unexpected currency context %v", err.Context)
		}
		if err.Cause != cause {
			t.Errorf("expected cause %v, got %v", cause, err.Cause)
		}
	})

	t.Run("RateUnavailable without cause", func(t *testing.T) {
		err := RateUnavailable("2024-01-15", "EUR", "USD", nil)
		if err.Cause != nil {
			t.Errorf("expected no cause, got %v", err.Cause)
		}
	})

	t.Run("EmptyInputSet", func(t *testing.T) {
		err := EmptyInputSet("accounts")
		if err.Category != CategoryInput {
			t.Errorf("expected input category, got %s", err.Category)
		}
		if err.Context["side"] != "accounts" {
			t.Errorf("expected side context, got %v", err.Context["side"])
		}
	})

	t.Run("SimilarityProviderError", func(t *testing.T) {
		err := SimilarityProviderError("embeddings", errors.New("timeout"))
		if err.Category != CategorySimilarity {
			t.Errorf("expected similarity category, got %s", err.Category)
		}
		if err.GetExitCode() != 5 {
			t.Errorf("expected exit code 5, got %d", err.GetExitCode())
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "bank.csv", 10, "amount", "12.3.4", nil)
		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["source"] != "bank.csv" {
			t.Errorf("expected source context, got %v", err.Context["source"])
		}
		if err.Context["line"] != 10 {
			t.Errorf("expected line context, got %v", err.Context["line"])
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		err := NetworkError(CodeTimeout, "https://api.frankfurter.app", nil)
		if err.Context["endpoint"] != "https://api.frankfurter.app" {
			t.Errorf("expected endpoint context, got %v", err.Context["endpoint"])
		}
	})
}

func TestHasCode(t *testing.T) {
	inner := EmptyInputSet("bank")
	wrapped := fmt.Errorf("run failed: %w", inner)

	if !HasCode(wrapped, CodeEmptyInputSet) {
		t.Error("expected wrapped error to carry empty_input_set")
	}
	if HasCode(wrapped, CodeRateUnavailable) {
		t.Error("did not expect rate_unavailable")
	}
	if HasCode(nil, CodeEmptyInputSet) {
		t.Error("nil error carries no code")
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		RateUnavailable("2024-01-01", "EUR", "USD", nil),
		RateUnavailable("2024-01-02", "GBP", "USD", nil),
		FileError(CodeFileNotFound, "missing.csv", nil),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryRate] != 2 {
		t.Errorf("expected 2 rate errors, got %d", summary.ByCategory[CategoryRate])
	}
	if !summary.HasCode(CodeFileNotFound) {
		t.Error("expected file_not_found code")
	}
	if summary.HasCategory(CategoryParse) {
		t.Error("did not expect parse category")
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("expected highest exit code 6, got %d", summary.GetExitCode())
	}

	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" {
		t.Errorf("expected 'no errors', got %s", empty.Error())
	}
	if empty.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", empty.GetExitCode())
	}
}

func TestAsReconcilerError(t *testing.T) {
	original := EmptyInputSet("bank")
	wrapped := fmt.Errorf("outer: %w", original)

	got, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("expected to extract ReconcilerError")
	}
	if got != original {
		t.Error("expected the original error")
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("did not expect a ReconcilerError from a plain error")
	}
	if IsReconcilerError(wrapped) {
		t.Error("IsReconcilerError only checks the top of the chain")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected nil for nil error")
	}

	original := EmptyInputSet("bank")
	if WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x") != original {
		t.Error("expected existing ReconcilerError to be returned as is")
	}

	plain := errors.New("boom")
	wrapped := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Cause != plain {
		t.Errorf("expected cause %v, got %v", plain, wrapped.Cause)
	}
}
