package remote

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	watt "watt/watt-client"
	"watt/watt-client/pkg/config"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	token  string
	userID string
}

func (f fakeSession) Token(context.Context) (string, error) {
	if f.token == "" {
		return "", errors.New("no token")
	}
	return f.token, nil
}

func (f fakeSession) UserID(context.Context) (string, error) {
	if f.userID == "" {
		return "", errors.New("no user")
	}
	return f.userID, nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, sess Session, opts ...Option) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Client.BaseURL = srv.URL
	return New(cfg.Client, sess, opts...), &calls
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestMissingTokenNeverReachesTransport(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	}, fakeSession{})
	ctx := context.Background()

	_, err := c.ListFeedback(ctx)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	_, err = c.CreateFeedback(ctx, "ana", "hi")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	_, err = c.UpdateFeedback(ctx, 1, "hi")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.True(t, errors.Is(c.DeleteFeedback(ctx, 1), ErrUnauthenticated))
	_, err = c.ListAppliances(ctx)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	_, err = c.CreateAppliance(ctx, watt.Appliance{Name: "x"})
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	_, err = c.UpdateAppliance(ctx, watt.Appliance{ID: 1})
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.True(t, errors.Is(c.DeleteAppliance(ctx, 1), ErrUnauthenticated))

	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
	assert.Equal(t, KindUnauthenticated, KindOf(err))
}

func TestCreateFeedbackSendsBearerAndUserID(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotBody map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/feedback", r.URL.Path)
		b, _ := ioutil.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"feedback_id": 11, "usuario": "ana", "mensagem": "great app", "data_feedback": "2024-05-01",
		})
	}, fakeSession{token: "abc", userID: "7"})

	f, err := c.CreateFeedback(context.Background(), "ana", "great app")
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", gotAuth)
	_, err = uuid.Parse(gotRequestID)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"usuario_id": "7", "usuario": "ana", "mensagem": "great app"}, gotBody)
	assert.Equal(t, watt.Feedback{ID: 11, Author: "ana", Message: "great app", CreatedAt: "2024-05-01"}, f)
}

func TestUnauthorizedIsSessionExpired(t *testing.T) {
	var expired int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	}, fakeSession{token: "abc"}, WithSessionExpiredHandler(func(context.Context) {
		atomic.AddInt32(&expired, 1)
	}))

	err := c.DeleteFeedback(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.False(t, errors.Is(err, ErrHTTP))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))
	assert.Equal(t, "Session expired. Please sign in again.", UserMessage(err))
}

func TestForbiddenAndServerErrorsAreHTTP(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInternalServerError} {
		var expired int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, map[string]string{"error": "nope"})
		}, fakeSession{token: "abc"}, WithSessionExpiredHandler(func(context.Context) {
			atomic.AddInt32(&expired, 1)
		}))

		_, err := c.ListAppliances(context.Background())
		assert.True(t, errors.Is(err, ErrHTTP))
		assert.False(t, errors.Is(err, ErrSessionExpired))
		assert.Equal(t, status, StatusOf(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(&expired))
	}
}

func TestListFeedbackServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db down"})
	}, fakeSession{token: "abc"})

	list, err := c.ListFeedback(context.Background())
	assert.Nil(t, list)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindHTTP, e.Kind)
	assert.Equal(t, 500, e.Status)
	assert.Equal(t, "db down", e.Message)
	assert.Equal(t, "db down", e.UserMessage())
}

func TestErrorBodyFallbacks(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "feedback not found"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}
	}, fakeSession{token: "abc"})

	err := c.DeleteFeedback(context.Background(), 9)
	assert.Equal(t, "feedback not found", UserMessage(err))
	assert.Equal(t, 404, StatusOf(err))

	_, err = c.ListFeedback(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindHTTP, e.Kind)
	assert.Equal(t, "request failed with status 502", e.Message)
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"unexpected": "object"})
	}, fakeSession{token: "abc"})

	_, err := c.ListFeedback(context.Background())
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.False(t, errors.Is(err, ErrHTTP))

	_, err = c.CreateAppliance(context.Background(), watt.Appliance{Name: "Fan"})
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := config.Default()
	cfg.Client.BaseURL = url
	c := New(cfg.Client, fakeSession{token: "abc"})

	_, err := c.ListFeedback(context.Background())
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, "Could not reach the server. Check your connection.", UserMessage(err))
}

func TestCanceledContextIsTransportError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	}, fakeSession{token: "abc"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListFeedback(ctx)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUpdateWithoutBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/feedback/5", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}, fakeSession{token: "abc"})

	f, err := c.UpdateFeedback(context.Background(), 5, "changed")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestUpdateApplianceSendsFullRecord(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appliances/42", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, got)
	}, fakeSession{token: "abc"})

	a, err := c.UpdateAppliance(context.Background(), watt.Appliance{
		ID: 42, Name: "Heater", PowerWatts: 1500, DailyUsageHours: 3, RegisteredAt: "2024-01-01",
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Heater", got["nome"])
	assert.Equal(t, float64(1500), got["potencia"])
	assert.Equal(t, float64(3), got["horas_uso"])
	assert.Equal(t, int64(42), a.ID)
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] == "ana" && body["senha"] == "123456" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"token": "abc", "id": 7})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}, fakeSession{})

	res, err := c.Login(context.Background(), watt.Credentials{Username: "ana", Password: "123456"})
	require.NoError(t, err)
	assert.Equal(t, watt.LoginResult{Token: "abc", UserID: "7"}, res)

	_, err = c.Login(context.Background(), watt.Credentials{Username: "ana", Password: "wrong-pass"})
	assert.True(t, errors.Is(err, ErrHTTP), "a failed login is not an expired session")
	assert.Equal(t, "invalid credentials", UserMessage(err))
}

func TestLoginWithoutToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": 7})
	}, fakeSession{})

	_, err := c.Login(context.Background(), watt.Credentials{Username: "ana", Password: "123456"})
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestRegister(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/register", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}, fakeSession{})

	assert.NoError(t, c.Register(context.Background(), watt.Credentials{Username: "ana", Password: "123456"}))
}
