package email

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(Config{}, discard)
	require.NoError(t, err)
	assert.Equal(t, "log", s.ProviderID())

	s, err = New(Config{Service: "smtp", SMTPHost: "mailpit", SMTPPort: "1025"}, discard)
	require.NoError(t, err)
	assert.Equal(t, "smtp", s.ProviderID())

	s, err = New(Config{Service: "webhook"}, discard)
	require.NoError(t, err)
	assert.Equal(t, "log", s.ProviderID(), "no api key falls back to the stub")

	_, err = New(Config{Service: "webhook", APIKey: "k"}, discard)
	assert.Error(t, err, "webhook needs a url")

	_, err = New(Config{Service: "pigeon"}, discard)
	assert.Error(t, err)
}

func TestWebhookSender(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := New(Config{Service: "webhook", APIKey: "secret-key", APIURL: srv.URL, From: "team@agribeta.io"}, discard)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), Message{To: "amina@example.com", Subject: "Hi", Body: "Body"}))
	assert.Equal(t, webhookPayload{From: "team@agribeta.io", To: "amina@example.com", Subject: "Hi", Text: "Body"}, got)
}

func TestWebhookSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(srv.URL, "k", "from@example.com")
	require.NoError(t, err)
	err = s.Send(context.Background(), Message{To: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestBuildMessage(t *testing.T) {
	raw, to, err := buildMessage("from@example.com", Message{To: "to@example.com", Subject: "Booked", Body: "line1\nline2"})
	require.NoError(t, err)
	assert.Equal(t, "to@example.com", to)
	assert.Contains(t, raw, "To: <to@example.com>\r\n")
	assert.Contains(t, raw, "Subject: Booked\r\n")
	assert.Contains(t, raw, "line1\r\nline2")
}

func TestBuildMessageKeepsSubjectOnOneHeader(t *testing.T) {
	raw, _, err := buildMessage("from@example.com", Message{
		To:      "agro@example.com",
		Subject: "New consultation request from Eve\r\nBcc: victim@example.com",
		Body:    "hello",
	})
	require.NoError(t, err)

	head, _, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)
	lines := strings.Split(head, "\r\n")
	for _, l := range lines {
		assert.False(t, strings.HasPrefix(l, "Bcc:"), "unexpected header line %q", l)
	}
	assert.Len(t, lines, 5)
	assert.Contains(t, raw, "Subject: New consultation request from Eve Bcc: victim@example.com\r\n")
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	_, _, err := buildMessage("from@example.com", Message{To: "agro@example.com\r\nBcc: victim@example.com", Subject: "x"})
	assert.Error(t, err)
}
