// Package moderation gates every user-supplied free-text field through an
// external moderation capability before commit.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Verdict is the moderation outcome for one text.
type Verdict string

const (
	VerdictAllowed  Verdict = "allowed"
	VerdictRejected Verdict = "rejected"
	VerdictPending  Verdict = "pending"
)

// Result is the gate's answer for one submission.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Gate is the moderation capability the action and social layers call.
type Gate interface {
	// Moderate classifies one text. Transport failures and timeouts degrade
	// to pending, never to allowed.
	Moderate(ctx context.Context, category, text string) Result

	// ModerateName requires a definitive verdict. Names never commit as
	// pending: a pending or unavailable gate blocks the action.
	ModerateName(ctx context.Context, category, text string) error
}

// Client calls an external moderation endpoint over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a moderation client. An empty URL allows everything,
// which is only acceptable in dev mode.
func NewClient(url string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "moderation").Logger(),
	}
}

type moderateRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type moderateResponse struct {
	Allowed bool   `json:"allowed"`
	Pending bool   `json:"pending"`
	Reason  string `json:"reason"`
}

// Moderate submits one text. Any failure to get a verdict returns pending.
func (c *Client) Moderate(ctx context.Context, category, text string) Result {
	if c.url == "" {
		return Result{Verdict: VerdictAllowed}
	}

	body, err := json.Marshal(moderateRequest{Category: category, Text: text})
	if err != nil {
		return Result{Verdict: VerdictPending}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{Verdict: VerdictPending}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("category", category).Msg("Moderation call failed, defaulting to pending")
		return Result{Verdict: VerdictPending}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("category", category).
			Msg("Moderation returned non-200, defaulting to pending")
		return Result{Verdict: VerdictPending}
	}

	var out moderateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{Verdict: VerdictPending}
	}

	switch {
	case out.Allowed:
		return Result{Verdict: VerdictAllowed}
	case out.Pending:
		return Result{Verdict: VerdictPending, Reason: out.Reason}
	default:
		return Result{Verdict: VerdictRejected, Reason: out.Reason}
	}
}

// ModerateName blocks until a definitive verdict exists.
func (c *Client) ModerateName(ctx context.Context, category, text string) error {
	res := c.Moderate(ctx, category, text)
	switch res.Verdict {
	case VerdictAllowed:
		return nil
	case VerdictRejected:
		reason := res.Reason
		if reason == "" {
			reason = "name rejected by moderation"
		}
		return domain.E(domain.KindPreconditionFailed, "%s", reason)
	default:
		return domain.E(domain.KindUpstreamUnavailable, "moderation unavailable, try again")
	}
}

var _ Gate = (*Client)(nil)
