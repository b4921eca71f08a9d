package clawerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 429", &ProviderHTTPError{Provider: "deepseek", StatusCode: 429}, true},
		{"http 503", &ProviderHTTPError{Provider: "deepseek", StatusCode: 503}, true},
		{"http 401", &ProviderHTTPError{Provider: "deepseek", StatusCode: 401, Body: "invalid key"}, false},
		{"quota marker", &ProviderHTTPError{Provider: "gemini", StatusCode: 400,
			Body: "Quota exceeded for this project"}, true},
		{"rate_limit marker", &ProviderHTTPError{Provider: "openai", StatusCode: 400,
			Body: `{"error":{"code":"rate_limit_exceeded"}}`}, true},
		{"overloaded marker", &ProviderHTTPError{Provider: "openai", StatusCode: 529,
			Body: "server overloaded"}, true},
		{"timeout", &TimeoutError{Provider: "deepseek", Err: errors.New("deadline")}, true},
		{"wrapped timeout", fmt.Errorf("route: %w",
			&TimeoutError{Provider: "deepseek", Err: errors.New("deadline")}), true},
		{"validation", NewValidation("bad input"), false},
		{"storage", &StorageError{Op: "insert", Err: errors.New("locked")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitMissingCredential, ExitCode(&MissingCredentialError{Name: "DEEPSEEK_API_KEY"}))
	assert.Equal(t, ExitProviderFailure, ExitCode(&ProviderHTTPError{Provider: "openai", StatusCode: 500}))
	assert.Equal(t, ExitProviderFailure, ExitCode(&TimeoutError{Provider: "openai", Err: errors.New("deadline")}))
	assert.Equal(t, ExitValidation, ExitCode(NewValidation("no title")))
	assert.Equal(t, ExitValidation, ExitCode(errors.New("anything else")))
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("load: %w", &NotFoundError{Entity: "task", ID: 7})
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("task 7 not found")))
	assert.Contains(t, err.Error(), "task 7 not found")
}
