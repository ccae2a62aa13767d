package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/braingame/waitlist-core/internal/models"
	"github.com/braingame/waitlist-core/internal/pkg/emailrisk"
	"github.com/braingame/waitlist-core/internal/pkg/ratelimit"
)

type testEnv struct {
	router *gin.Engine
	f      *fixture
}

func newTestEnv(maxPerWindow int) *testEnv {
	gin.SetMode(gin.TestMode)

	f := newFixture()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), maxPerWindow, time.Minute, zap.NewNop())
	h := NewHandler(f.svc, limiter, nil, zap.NewNop())

	router := gin.New()
	api := router.Group("/api/v1")
	passthrough := func(c *gin.Context) { c.Next() }
	h.RegisterRoutes(api, passthrough)

	return &testEnv{router: router, f: f}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSubscribeEndpoint(t *testing.T) {
	e := newTestEnv(100)

	w := e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, MsgCheckEmail, body["message"])

	sub, err := e.f.subs.GetByEmail(context.Background(), "jordan@gmail.com")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.StatusPending, sub.Status)
}

func TestSubscribeBadJSON(t *testing.T) {
	e := newTestEnv(100)

	w := e.do("POST", "/api/v1/subscribe", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request format", decodeBody(t, w)["message"])
}

func TestSubscribeMissingEmail(t *testing.T) {
	e := newTestEnv(100)

	for _, body := range []string{`{}`, `{"email":""}`, `{"email":"   "}`, `{"email":42}`} {
		w := e.do("POST", "/api/v1/subscribe", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
		assert.Equal(t, "Please provide a valid email address", decodeBody(t, w)["message"])
	}
}

func TestSubscribeInvalidEmailHidesReason(t *testing.T) {
	e := newTestEnv(100)

	w := e.do("POST", "/api/v1/subscribe", `{"email":"bad..dots@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	// The generic message, never the validator's reason.
	assert.Equal(t, "Please provide a valid email address", body["message"])
	assert.NotContains(t, w.Body.String(), "dots")
}

// Disposable domains score high risk but stay valid; they are not rejected.
func TestSubscribeDisposableDomainAccepted(t *testing.T) {
	e := newTestEnv(100)

	w := e.do("POST", "/api/v1/subscribe", `{"email":"throwaway@mailinator.com"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscribeRateLimited(t *testing.T) {
	e := newTestEnv(2)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < 2; i++ {
		w := e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, headers)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests. Please try again later.", decodeBody(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different client is unaffected.
	w = e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`,
		map[string]string{"X-Forwarded-For": "198.51.100.9"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// Malformed requests are rejected before the limiter, so they never consume a
// slot.
func TestMissingEmailDoesNotConsumeLimit(t *testing.T) {
	e := newTestEnv(1)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < 5; i++ {
		w := e.do("POST", "/api/v1/subscribe", `{}`, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, headers)
	assert.Equal(t, http.StatusOK, w.Code)
}

// Invalid (but present) emails DO consume a slot: validation runs after the
// limiter.
func TestInvalidEmailConsumesLimit(t *testing.T) {
	e := newTestEnv(1)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	w := e.do("POST", "/api/v1/subscribe", `{"email":"not-an-email"}`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestConfirmEndpoint(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)

	// The deterministic generator issued token-1.
	w := e.do("GET", "/api/v1/subscribe/confirm?token=token-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgConfirmed, decodeBody(t, w)["message"])

	// Re-use is rejected.
	w = e.do("GET", "/api/v1/subscribe/confirm?token=token-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidToken, decodeBody(t, w)["message"])

	w = e.do("GET", "/api/v1/subscribe/confirm", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing confirmation token", decodeBody(t, w)["message"])
}

func TestConfirmPostBody(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)

	w := e.do("POST", "/api/v1/subscribe/confirm", `{"token":"token-1"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnsubscribeEndpoint(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)

	w := e.do("POST", "/api/v1/subscribe/unsubscribe", `{"email":"jordan@gmail.com"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgUnsubscribed, decodeBody(t, w)["message"])

	w = e.do("POST", "/api/v1/subscribe/unsubscribe", `{"email":"jordan@gmail.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgAlreadyUnsubscribed, decodeBody(t, w)["message"])

	w = e.do("POST", "/api/v1/subscribe/unsubscribe", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing email address", decodeBody(t, w)["message"])
}

// The emailed unsubscribe link arrives as a GET with the address in the
// query string.
func TestUnsubscribeLinkGet(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)

	w := e.do("GET", "/api/v1/subscribe/unsubscribe?email=jordan%40gmail.com", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgUnsubscribed, decodeBody(t, w)["message"])
}

func TestBroadcastEndpoint(t *testing.T) {
	e := newTestEnv(100)

	w := e.do("POST", "/api/v1/subscribe/broadcast", `{"title":"","html":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No mailer configured in the test env.
	w = e.do("POST", "/api/v1/subscribe/broadcast", `{"title":"Beta","html":"<p>hi</p>"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Mail delivery is not configured", decodeBody(t, w)["message"])

	e.f.svc.mailer = &fakeMailer{}
	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)
	e.do("GET", "/api/v1/subscribe/confirm?token=token-1", "", nil)

	w = e.do("POST", "/api/v1/subscribe/broadcast", `{"title":"Beta","html":"<p>hi</p>","text":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["sent"])
}

func TestSubscriberCountEndpoint(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)
	e.do("GET", "/api/v1/subscribe/confirm?token=token-1", "", nil)

	w := e.do("GET", "/api/v1/subscribe/subscribers/count", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])
}

func TestListSubscribersEndpoint(t *testing.T) {
	e := newTestEnv(100)

	e.do("POST", "/api/v1/subscribe", `{"email":"jordan@gmail.com"}`, nil)
	e.do("POST", "/api/v1/subscribe", `{"email":"taylor@gmail.com"}`, nil)

	w := e.do("GET", "/api/v1/subscribe/subscribers", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = e.do("GET", "/api/v1/subscribe/subscribers?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("GET", "/api/v1/subscribe/subscribers?status=confirmed", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeBody(t, w)["count"])
}

// failingSubscriberStore errors on every call, standing in for a lost
// database connection.
type failingSubscriberStore struct{}

func (failingSubscriberStore) GetByEmail(context.Context, string) (*models.SubscriberModel, error) {
	return nil, errors.New("connection refused")
}

func (failingSubscriberStore) Save(context.Context, *models.SubscriberModel) error {
	return errors.New("connection refused")
}

func (failingSubscriberStore) List(context.Context, string) ([]models.SubscriberModel, error) {
	return nil, errors.New("connection refused")
}

func (failingSubscriberStore) CountByStatus(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestSubscribeStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	f := newFixture()
	f.svc.subs = failingSubscriberStore{}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 100, time.Minute, zap.NewNop())
	h := NewHandler(f.svc, limiter, nil, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"), func(c *gin.Context) { c.Next() })

	req := httptest.NewRequest("POST", "/api/v1/subscribe", strings.NewReader(`{"email":"jordan@gmail.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	// Clients only ever see the generic message.
	assert.Equal(t, "An error occurred. Please try again later.", body["message"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestClientIdentifier(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded single", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"forwarded with spaces", map[string]string{"X-Forwarded-For": "  203.0.113.7 , 10.0.0.1"}, "203.0.113.7"},
		{"forwarded empty entry", map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, "unknown"},
		{"real ip fallback", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.9"}, "203.0.113.7"},
		{"no headers", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("POST", "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIdentifier(c))
		})
	}
}

// The handler's validator hook is what subscribe consults; a permissive stub
// lets otherwise-rejected addresses through, proving validation is not
// duplicated deeper in the stack.
func TestValidatorIsInjectable(t *testing.T) {
	gin.SetMode(gin.TestMode)

	f := newFixture()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 100, time.Minute, zap.NewNop())
	h := NewHandler(f.svc, limiter, nil, zap.NewNop())
	h.validate = func(string) emailrisk.Result { return emailrisk.Result{IsValid: true} }

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"), func(c *gin.Context) { c.Next() })

	req := httptest.NewRequest("POST", "/api/v1/subscribe", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
