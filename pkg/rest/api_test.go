package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/wire"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Security.Secret = "test-secret"
	e := gin.New()
	NewServer(cfg, e, NewMemory()).Initialise()
	return e
}

func call(e *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, e *gin.Engine) string {
	t.Helper()
	rec := call(e, http.MethodPost, "/api/users/register", "", wire.Login{Username: "ana", Password: "123456"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(e, http.MethodPost, "/api/users/login", "", wire.Login{Username: "ana", Password: "123456"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reply wire.LoginReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.NotEmpty(t, reply.Token)
	assert.NotZero(t, reply.ID)
	return reply.Token
}

func TestRegisterAndLogin(t *testing.T) {
	e := testServer(t)
	login(t, e)

	rec := call(e, http.MethodPost, "/api/users/register", "", wire.Login{Username: "ana", Password: "123456"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(e, http.MethodPost, "/api/users/register", "", wire.Login{Username: "bo", Password: "12345"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"password must be at least 6 characters."}`, rec.Body.String())

	rec = call(e, http.MethodPost, "/api/users/login", "", wire.Login{Username: "ana", Password: "wrong!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestFeedbackRequiresToken(t *testing.T) {
	e := testServer(t)
	rec := call(e, http.MethodGet, "/api/feedback", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = call(e, http.MethodGet, "/api/feedback", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFeedbackLifecycle(t *testing.T) {
	e := testServer(t)
	tok := login(t, e)

	rec := call(e, http.MethodPost, "/api/feedback", tok, wire.FeedbackCreate{Message: "great app"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created wire.FeedbackOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ana", created.Author)
	assert.NotEmpty(t, created.CreatedAt)

	rec = call(e, http.MethodPost, "/api/feedback", tok, wire.FeedbackCreate{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/feedback/" + jsonNumber(created.ID)
	rec = call(e, http.MethodPut, path, tok, wire.FeedbackUpdate{Message: "even better"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "even better")

	rec = call(e, http.MethodDelete, path, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(e, http.MethodDelete, path, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"feedback not found"}`, rec.Body.String())

	rec = call(e, http.MethodGet, "/api/feedback", tok, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestApplianceLifecycle(t *testing.T) {
	e := testServer(t)
	tok := login(t, e)

	rec := call(e, http.MethodPost, "/api/appliances", tok, wire.Appliance{Name: "Oven", PowerWatts: 2000, DailyUsageHours: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created wire.Appliance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	rec = call(e, http.MethodPost, "/api/appliances", tok, wire.Appliance{Name: "Broken", PowerWatts: -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/appliances/" + jsonNumber(created.ID)
	rec = call(e, http.MethodPut, path, tok, wire.Appliance{Name: "Oven", PowerWatts: 1800, DailyUsageHours: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated wire.Appliance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.RegisteredAt, updated.RegisteredAt)
	assert.Equal(t, int64(1800), updated.PowerWatts)

	rec = call(e, http.MethodDelete, "/api/appliances/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(e, http.MethodDelete, path, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := testServer(t)
	rec := call(e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(e, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "watt_server_http_requests_total")
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

// brokenRepo fails every feedback listing with a driver error.
type brokenRepo struct {
	*Memory
}

func (brokenRepo) ListFeedback(context.Context) ([]watt.Feedback, error) {
	return nil, errors.New(`pq: relation "feedback" does not exist`)
}

func TestInternalErrorsStayInTheLog(t *testing.T) {
	cfg := config.Default()
	cfg.Security.Secret = "test-secret"
	e := gin.New()
	NewServer(cfg, e, brokenRepo{NewMemory()}).Initialise()
	tok := login(t, e)

	rec := call(e, http.MethodGet, "/api/feedback", tok, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "relation")
}
