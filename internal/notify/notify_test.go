package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRenderTemplates(t *testing.T) {
	for _, name := range []string{TemplateVerificationCode, TemplatePasswordReset, TemplatePasswordChanged, TemplateWelcome} {
		for _, lang := range []string{"fr", "en"} {
			out, err := Render(name, lang, map[string]any{"Code": "123456", "ExpiresInMinutes": 10, "FirstName": "Ama", "AppName": "Pitchfork"})
			require.NoError(t, err, name)
			require.Contains(t, out, `lang="`+lang+`"`)
		}
	}
}

func TestRenderEscapesData(t *testing.T) {
	out, err := Render(TemplateWelcome, "en", map[string]any{"FirstName": "<script>x</script>"})
	require.NoError(t, err)
	require.NotContains(t, out, "<script>")
	require.Contains(t, out, "&lt;script&gt;")
}

func TestRenderCode(t *testing.T) {
	out, err := Render(TemplateVerificationCode, "fr", map[string]any{"Code": "654321", "ExpiresInMinutes": 10})
	require.NoError(t, err)
	require.Contains(t, out, "654321")
	require.Contains(t, out, "Votre code")
}

func TestLogDispatcherHidesBodies(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := LogDispatcher{Logger: zap.New(core).Sugar()}

	require.NoError(t, d.SendSMS(context.Background(), "+22890000000", "code 123456"))
	require.NoError(t, d.SendEmail(context.Background(), Email{To: "a@x.com", Subject: "s", Template: TemplateVerificationCode, Data: map[string]any{"Code": "123456"}}))

	for _, e := range logs.All() {
		for _, f := range e.Context {
			require.NotContains(t, f.String, "123456")
		}
	}
	require.Equal(t, 2, logs.Len())
}

func TestSMSGateway(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, "tok", "PITCHFORK")
	require.NoError(t, g.SendSMS(context.Background(), "+22890000000", "hello"))
	require.Equal(t, "+22890000000", got["to"])
	require.Equal(t, "hello", got["message"])

	bad := NewSMSGateway(srv.URL, "wrong", "")
	err := bad.SendSMS(context.Background(), "+22890000000", "hello")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "401"))
}

func TestMultiNotConfigured(t *testing.T) {
	m := Multi{}
	require.ErrorIs(t, m.SendEmail(context.Background(), Email{}), ErrNotConfigured)
	require.ErrorIs(t, m.SendSMS(context.Background(), "x", "y"), ErrNotConfigured)
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	raw := string(buildMessage("no-reply@x.com", "a@x.com", "Vérification", "<p>hi</p>"))
	require.Contains(t, raw, "Subject: =?utf-8?q?")
	require.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>hi</p>"))
}
