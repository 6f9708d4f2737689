// Package mail is the boundary to the outbound email collaborator.  The
// engine only ever sends password-reset links, so the contract is one
// method.  Deliverability is the provider's problem.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

/*──────────────────────────── HTTP API ────────────────────────────────────*/

// HTTPOptions configures HTTPMailer.
type HTTPOptions struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
	Retries  int
}

// HTTPMailer posts JSON to a transactional-mail API, retrying transient
// failures with backoff.
type HTTPMailer struct {
	client   *retryablehttp.Client
	endpoint string
	apiKey   string
	from     string
}

func NewHTTPMailer(opt HTTPOptions, log *zap.Logger) *HTTPMailer {
	if log == nil {
		log = zap.NewNop()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = opt.Retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = opt.Timeout
	c.Logger = retryLogger{log.Named("mail").Sugar()}
	return &HTTPMailer{client: c, endpoint: opt.Endpoint, apiKey: opt.APIKey, from: opt.From}
}

func (h *HTTPMailer) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(struct {
		From string `json:"from"`
		Message
	}{h.from, m})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail: provider returned %s", resp.Status)
	}
	return nil
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct{ s *zap.SugaredLogger }

func (l retryLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }

/*──────────────────────────── log only ────────────────────────────────────*/

// LogMailer writes messages to the log.  Used in development and when no
// endpoint is configured.  Token query values are masked; a log line must
// never be enough to take over an account.
type LogMailer struct {
	Log *zap.Logger
}

var tokenParam = regexp.MustCompile(`(token=)[^&\s]+`)

func redact(text string) string { return tokenParam.ReplaceAllString(text, "${1}REDACTED") }

func (l LogMailer) Send(_ context.Context, m Message) error {
	log := l.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("mail (log only)",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("text", redact(m.Text)),
	)
	return nil
}
