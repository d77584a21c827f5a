package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pest-diagnosis-service/llm"
	"pest-diagnosis-service/metrics"
	"pest-diagnosis-service/prompts"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	DefaultAPIURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel  = "gemini-1.5-flash"

	maxResponseBytes = 8 << 20
)

// Config is everything the client needs; nothing is read from the environment here.
type Config struct {
	// APIURL is either the API base (".../v1beta") or a full ":generateContent" URL.
	APIURL          string
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures int
	BreakerOpenFor  time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *prompts.Schema `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a Gemini client from an explicit configuration.
func NewClient(cfg Config) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	failures := uint32(cfg.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// A caller abandoning the request says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("llm.breaker.state_change")
			metrics.BreakerOpen.Set(boolGauge(to == gobreaker.StateOpen))
		},
	})

	return &Client{cfg: cfg, http: httpClient, breaker: breaker}
}

func (c *Client) SourceName() string {
	return "Gemini"
}

// Generate sends the prompt (and optional inline image) and returns the first text part
// of the first candidate.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	data, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", &llm.TransportError{Op: "gemini.marshal", Err: err}
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.generateWithRetry(ctx, data)
	})
	if err != nil {
		var te *llm.TransportError
		if errors.As(err, &te) {
			return "", err
		}
		return "", &llm.TransportError{Op: "gemini.generate", Err: err}
	}
	return res.(string), nil
}

func buildRequest(req llm.Request) geminiRequest {
	parts := []part{{Text: req.Prompt}}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, part{
			InlineData: &inlineData{
				MimeType: req.Image.MimeType,
				Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}

	body := geminiRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	if req.Schema != nil {
		body.GenerationConfig = &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		}
	}
	return body
}

func (c *Client) endpoint() string {
	if strings.Contains(c.cfg.APIURL, ":generateContent") {
		return c.cfg.APIURL
	}
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.Model)
}

func (c *Client) generateWithRetry(ctx context.Context, payload []byte) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.cfg.Timeout

	var text string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		t, err := c.call(ctx, payload)
		if err == nil {
			text = t
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("llm.gemini.retry")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", &llm.TransportError{Op: "gemini.request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &llm.TransportError{Op: "gemini.send", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &llm.TransportError{Op: "gemini.read", StatusCode: resp.StatusCode, Err: err}
	}

	var parsed geminiResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "request failed"
		if parseErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", &llm.TransportError{Op: "gemini.generate", StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if parseErr != nil {
		return "", &llm.TransportError{Op: "gemini.decode", StatusCode: resp.StatusCode, Err: parseErr}
	}
	if len(parsed.Candidates) == 0 {
		reason := "no candidates in response"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason += " (blocked: " + parsed.PromptFeedback.BlockReason + ")"
		}
		return "", &llm.TransportError{Op: "gemini.generate", StatusCode: resp.StatusCode, Err: errors.New(reason)}
	}

	for _, p := range parsed.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	// An empty answer is still an answer: the image path treats it as invalid input.
	if len(parsed.Candidates[0].Content.Parts) > 0 {
		return "", nil
	}
	return "", &llm.TransportError{Op: "gemini.generate", StatusCode: resp.StatusCode, Err: errors.New("no text part in response")}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *llm.TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch {
	case te.StatusCode == http.StatusTooManyRequests:
		return true
	case te.StatusCode >= 500:
		return true
	case te.StatusCode == 0:
		return te.Op == "gemini.send"
	}
	return false
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
