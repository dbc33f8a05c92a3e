package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]PingFunc
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name:       "all reachable",
			checks:     map[string]PingFunc{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantBody: map[string]interface{}{
				"message": "ok",
				"checks":  map[string]interface{}{"database": "ok", "redis": "ok"},
			},
		},
		{
			name:       "redis down",
			checks:     map[string]PingFunc{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: map[string]interface{}{
				"message": "unavailable",
				"checks":  map[string]interface{}{"database": "ok", "redis": "connection refused"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t, &fakeUserOpService{}, NewHealthHandler(tt.checks))

			w := doRequest(router, http.MethodGet, "/api/v1/health", nil, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestHealthHandler_PassesDeadline(t *testing.T) {
	var hasDeadline bool
	check := func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}
	router := setupRouter(t, &fakeUserOpService{}, NewHealthHandler(map[string]PingFunc{"database": check}))

	w := doRequest(router, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hasDeadline)
}
