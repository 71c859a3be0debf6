package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.LoginResult("password", "success")
	c.LoginResult("password", "success")
	c.LoginResult("password", "invalid_credentials")
	c.OtpIssued("email", "verification")
	c.OtpVerified("otp_mismatch")
	c.TokenRefresh("success")
	c.NotificationFailed("sms")

	require.Equal(t, 2.0, testutil.ToFloat64(c.logins.WithLabelValues("password", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("password", "invalid_credentials")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.otpIssued.WithLabelValues("email", "verification")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.notifyFailed.WithLabelValues("sms")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/users/{id}", "GET", "418")))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.TokenRefresh("token_invalid")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "auth_token_refresh_total"))
}
