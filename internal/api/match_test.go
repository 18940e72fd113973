package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smefinder/smefinder/pkg/errors"
)

func newMatchRouter(runner Runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/match", NewMatchHandler(runner).Handle)
	return router
}

func postMatch(router *gin.Engine, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMatch_DescriptionOnly(t *testing.T) {
	runner := &fakeRunner{outcome: defaultOutcome()}
	router := newMatchRouter(runner)

	w := postMatch(router, `{"description":"customers report intermittent gateway errors"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.requests, 1)
	assert.False(t, runner.requests[0].RequireEligibility)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestMatch_RequiresAtLeastOneInput(t *testing.T) {
	runner := &fakeRunner{outcome: defaultOutcome()}
	router := newMatchRouter(runner)

	w := postMatch(router, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.requests)
}

func TestMatch_ShortDescriptionRejected(t *testing.T) {
	runner := &fakeRunner{outcome: defaultOutcome()}
	router := newMatchRouter(runner)

	w := postMatch(router, `{"description":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatch_RateLimitCarriesRetryAfter(t *testing.T) {
	runner := &fakeRunner{
		err: errors.NewRateLimitError("agent throttled").WithRetryAfter(30 * time.Second),
	}
	router := newMatchRouter(runner)

	w := postMatch(router, `{"ticket_id":"42"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestMatch_MalformedBodyRejected(t *testing.T) {
	router := newMatchRouter(&fakeRunner{outcome: defaultOutcome()})

	w := postMatch(router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
