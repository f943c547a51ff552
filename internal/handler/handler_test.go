package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gstbooks/internal/apperror"
	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperror.NewValidationError("op", "field", "bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperror.NewPartyMismatchError("op", "vendor on sale"), http.StatusUnprocessableEntity, "PARTY_MISMATCH"},
		{apperror.NewPostingError("op", "already posted"), http.StatusConflict, "POSTING_ERROR"},
		{apperror.NewAlreadyIncludedError("op", "in challan"), http.StatusConflict, "ALREADY_INCLUDED"},
		{apperror.NewImmutableReturnError("op", "filed"), http.StatusLocked, "IMMUTABLE_RETURN"},
		{apperror.NewNotFoundError("op", "missing"), http.StatusNotFound, "NOT_FOUND"},
		{apperror.NewConflictError("op", "duplicate", nil), http.StatusConflict, "CONFLICT"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.status, body.StatusCode)
			assert.Equal(t, tt.kind, body.ErrorKind)
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New("pq: password authentication failed"))

	assert.NotContains(t, w.Body.String(), "password")
}

func TestRespondErrorLogsInternalFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := zlog.Logger
	zlog.Logger = zerolog.New(&buf)
	t.Cleanup(func() { zlog.Logger = prev })

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/invoices", nil)

	respondError(c, errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"component":"http"`)
	assert.Contains(t, buf.String(), "connection reset")

	buf.Reset()
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
	respondError(c, apperror.NewNotFoundError("GetInvoice", "invoice not found"))
	assert.Empty(t, buf.String())
}

// stubInvoices implements only the calls the tests make.
type stubInvoices struct {
	service.InvoiceService
	sendErr error
	sentBy  string
}

func (s *stubInvoices) SendInvoice(_ context.Context, id string, userID string) (service.InvoiceResponse, error) {
	s.sentBy = userID
	if s.sendErr != nil {
		return service.InvoiceResponse{}, s.sendErr
	}
	return service.InvoiceResponse{ID: id, Status: "SENT"}, nil
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "role": role}).
		SignedString(middleware.GetJWTSecret())
	require.NoError(t, err)
	return "Bearer " + token
}

func TestSendInvoiceRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	middleware.SetJWTSecret("handler-test")
	t.Cleanup(func() { middleware.SetJWTSecret("") })

	stub := &stubInvoices{}
	r := gin.New()
	NewInvoiceHandler(stub).RegisterRoutes(r.Group(""))

	send := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv-1/send", nil)
		req.Header.Set("Authorization", bearer(t, role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(middleware.RoleAccountant)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", stub.sentBy)
	assert.Contains(t, w.Body.String(), `"status":"SENT"`)

	assert.Equal(t, http.StatusForbidden, send(middleware.RoleViewer).Code)

	stub.sendErr = apperror.NewPostingError("SendInvoice", "invoice SI/2024-25/0001 is already posted")
	w = send(middleware.RoleAdmin)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"error_kind":"POSTING_ERROR"`))
}

func TestCreateInvoiceRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	middleware.SetJWTSecret("handler-test")
	t.Cleanup(func() { middleware.SetJWTSecret("") })

	r := gin.New()
	NewInvoiceHandler(&stubInvoices{}).RegisterRoutes(r.Group(""))

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(`{"invoice_type":"BARTER"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, middleware.RoleAdmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request payload")
}
