package gapierr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/okozlov/mailvault/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{name: "nil", err: nil},
		{name: "rate limit", err: &googleapi.Error{Code: 429}, transient: true},
		{name: "server error", err: &googleapi.Error{Code: 503}, transient: true},
		{name: "quota exceeded", err: &googleapi.Error{Code: 403, Message: "quotaExceeded"}, fatal: true},
		{name: "unauthorized", err: &googleapi.Error{Code: 401}, fatal: true},
		{name: "not found", err: &googleapi.Error{Code: 404}, fatal: true},
		{name: "wrapped api error", err: fmt.Errorf("call: %w", &googleapi.Error{Code: 500}), transient: true},
		{name: "network blip", err: errors.New("connection reset"), transient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.transient, domain.IsTransient(got))
			assert.Equal(t, tt.fatal, domain.IsFatal(got))
		})
	}
}

func TestClassify_ContextErrorsPassThrough(t *testing.T) {
	got := Classify("op", context.Canceled)
	assert.ErrorIs(t, got, context.Canceled)
	assert.False(t, domain.IsTransient(got))
	assert.False(t, domain.IsFatal(got))
}
