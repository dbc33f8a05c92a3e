package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDomainErrorToCode(t *testing.T) {
	tests := []struct {
		code     domain.ErrorCode
		expected int
	}{
		{domain.ErrorCodeParameterInvalid, 1001},
		{domain.ErrorCodeResourceNotFound, 1002},
		{domain.ErrorCodeAuthPermissionDenied, 1003},
		{domain.ErrorCodeAuthNotAuthenticated, 1004},
		{domain.ErrorCodeInternalProcess, 1005},
		{domain.ErrorCodeRemoteProcessError, 1006},
		{domain.ErrorCodeResourceConflict, 1007},
	}

	for _, tt := range tests {
		t.Run(tt.code.Name, func(t *testing.T) {
			domainErr := parseDomainError(domain.NewError(tt.code, errors.New("cause")))
			assert.Equal(t, tt.expected, mapDomainErrorToCode(domainErr))
		})
	}

	assert.Equal(t, 1000, mapDomainErrorToCode(parseDomainError(errors.New("plain"))))
}

func TestRespondWithError_LogLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantLevel  string
	}{
		{
			name:       "conflict is a warning",
			err:        fmt.Errorf("submit: %w", domain.NewError(domain.ErrorCodeResourceConflict, errors.New("exists"), domain.WithMsg("already submitted"))),
			wantStatus: http.StatusConflict,
			wantLevel:  "warn",
		},
		{
			name:       "bundler failure is an error",
			err:        domain.NewError(domain.ErrorCodeRemoteProcessError, errors.New("bundler down")),
			wantStatus: http.StatusBadGateway,
			wantLevel:  "error",
		},
		{
			name:       "plain error is an error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantLevel:  "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request = req.WithContext(logger.WithContext(context.Background()))

			respondWithError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotEmpty(t, buf.String())
			assert.Contains(t, buf.String(), `"level":"`+tt.wantLevel+`"`)
		})
	}
}
