package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
)

func moderationServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestModerate_EmptyURLAllows(t *testing.T) {
	c := NewClient("", time.Second, zerolog.Nop())
	res := c.Moderate(context.Background(), "chat_message", "anything goes")
	assert.Equal(t, VerdictAllowed, res.Verdict)
}

func TestModerate_Verdicts(t *testing.T) {
	var gotCategory, gotText string
	srv := moderationServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Category string `json:"category"`
			Text     string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotCategory, gotText = req.Category, req.Text

		resp := map[string]interface{}{"allowed": false, "reason": "profanity"}
		if req.Text == "fine" {
			resp = map[string]interface{}{"allowed": true}
		}
		if req.Text == "unsure" {
			resp = map[string]interface{}{"allowed": false, "pending": true}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	c := NewClient(srv.URL, time.Second, zerolog.Nop())

	res := c.Moderate(context.Background(), "chat_message", "fine")
	assert.Equal(t, VerdictAllowed, res.Verdict)
	assert.Equal(t, "chat_message", gotCategory)
	assert.Equal(t, "fine", gotText)

	res = c.Moderate(context.Background(), "chat_message", "unsure")
	assert.Equal(t, VerdictPending, res.Verdict)

	res = c.Moderate(context.Background(), "chat_message", "rude")
	assert.Equal(t, VerdictRejected, res.Verdict)
	assert.Equal(t, "profanity", res.Reason)
}

func TestModerate_FailuresDegradeToPending(t *testing.T) {
	srv := moderationServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	res := c.Moderate(context.Background(), "chat_message", "hello")
	assert.Equal(t, VerdictPending, res.Verdict)

	// Unreachable endpoint
	down := NewClient("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop())
	res = down.Moderate(context.Background(), "chat_message", "hello")
	assert.Equal(t, VerdictPending, res.Verdict)
}

func TestModerateName(t *testing.T) {
	srv := moderationServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{"allowed": req.Text == "Clean Co"}
		_ = json.NewEncoder(w).Encode(resp)
	})
	c := NewClient(srv.URL, time.Second, zerolog.Nop())

	assert.NoError(t, c.ModerateName(context.Background(), "company_name", "Clean Co"))

	err := c.ModerateName(context.Background(), "company_name", "Sweary Inc")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestModerateName_UnavailableBlocks(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop())
	err := c.ModerateName(context.Background(), "company_name", "Anyone")
	assert.Equal(t, domain.KindUpstreamUnavailable, domain.KindOf(err))
}
