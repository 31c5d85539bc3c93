package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/service"
	"github.com/gallery-hub/backend/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthedRouter(codec *token.Codec) *gin.Engine {
	router := gin.New()
	router.GET("/whoami", AuthMiddleware(codec), func(c *gin.Context) {
		id, _ := AuthUserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	return router
}

func TestAuthMiddlewareAcceptsValidBearer(t *testing.T) {
	codec := token.NewCodec([]byte("test-secret"), 15*time.Minute)
	router := newAuthedRouter(codec)

	signed, _, err := codec.SignAccess(&model.User{ID: 7, Email: "a@example.com", Tier: model.TierFree})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":7`)
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	codec := token.NewCodec([]byte("test-secret"), 15*time.Minute)
	router := newAuthedRouter(codec)

	otherCodec := token.NewCodec([]byte("other-secret"), 15*time.Minute)
	foreign, _, err := otherCodec.SignAccess(&model.User{ID: 7, Email: "a@example.com"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong signature", "Bearer " + foreign},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.name)
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrValidation, http.StatusBadRequest},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrAccountInactive, http.StatusForbidden},
		{service.ErrAccountLocked, http.StatusLocked},
		{service.ErrQuotaExceeded, http.StatusPaymentRequired},
		{service.ErrConflict, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		writeServiceError(c, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestWriteServiceErrorLockedCarriesRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeServiceError(c, &service.AccountLockedError{RetryAfter: 90 * time.Second})

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "1m30s", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "account_locked")
}

func TestWriteServiceErrorQuotaExceededPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeServiceError(c, &service.QuotaExceededError{Limit: 100, Remaining: 10, Shortfall: 5})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), `"limit":100`)
	assert.Contains(t, rec.Body.String(), `"shortfall":5`)
}

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.example.com"}, true))
	router.GET("/ping", Ping)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Preflight short-circuits.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
