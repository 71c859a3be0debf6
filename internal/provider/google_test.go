package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenInfoServer(t *testing.T, status int, body map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") != "good-token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleVerify(t *testing.T) {
	srv := tokenInfoServer(t, http.StatusOK, map[string]string{
		"aud":            "client-1",
		"sub":            "1234",
		"email":          "Kofi@Example.com",
		"email_verified": "true",
		"given_name":     "Kofi",
		"family_name":    "Mensah",
	})

	id, err := NewGoogle("client-1", srv.URL).Verify(context.Background(), "good-token")
	require.NoError(t, err)
	require.Equal(t, "kofi@example.com", id.Email)
	require.Equal(t, "Kofi", id.FirstName)
	require.Equal(t, "Mensah", id.LastName)
	require.Equal(t, "google", id.Provider)
}

func TestGoogleVerifyRejects(t *testing.T) {
	cases := map[string]struct {
		status int
		body   map[string]string
	}{
		"wrong audience": {http.StatusOK, map[string]string{"aud": "other", "email": "a@x.com", "email_verified": "true"}},
		"unverified":     {http.StatusOK, map[string]string{"aud": "client-1", "email": "a@x.com", "email_verified": "false"}},
		"no email":       {http.StatusOK, map[string]string{"aud": "client-1", "email_verified": "true"}},
		"bad status":     {http.StatusBadRequest, map[string]string{"error": "invalid_token"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := tokenInfoServer(t, tc.status, tc.body)
			_, err := NewGoogle("client-1", srv.URL).Verify(context.Background(), "good-token")
			require.ErrorIs(t, err, ErrInvalidProviderToken)
		})
	}
}

func TestGoogleVerifyEmptyToken(t *testing.T) {
	_, err := NewGoogle("client-1", "http://127.0.0.1:0").Verify(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidProviderToken)
}
