package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("down") }

func TestChecker_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Option
		wantCode   int
		wantStatus map[string]string
	}{
		{
			name:       "all up",
			checks:     []Option{WithCheck("redis", ok), WithCheck("database", ok)},
			wantCode:   http.StatusOK,
			wantStatus: map[string]string{"redis": StatusConnected, "database": StatusConnected},
		},
		{
			name:       "one down",
			checks:     []Option{WithCheck("redis", ok), WithCheck("database", down)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: map[string]string{"redis": StatusConnected, "database": StatusDisconnected},
		},
		{
			name:       "nil nats connection",
			checks:     []Option{WithNATS(nil)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: map[string]string{"nats": StatusDisconnected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewChecker(tt.checks...).Handler()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var status map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tt.wantStatus, status)

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestChecker_NoChecksIsHealthy(t *testing.T) {
	assert.True(t, NewChecker().IsHealthy(context.Background()))
}
