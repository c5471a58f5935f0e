// Package remote talks to an external model server over JSON/HTTP. Every
// response body is validated against a JSON schema before it is trusted.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SirClappington/textintel/internal/domain"
)

var ErrBadResponse = errors.New("model server returned an invalid response")

type Config struct {
	BaseURL string
	// Timeout bounds each call; it is the stage timeout for this adapter.
	Timeout time.Duration
	// RPS limits outbound calls; zero disables limiting.
	RPS        float64
	HTTPClient *http.Client
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	schemas map[string]*jsonschema.Schema
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote analyzer: base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		log:     logger.Named("remote_analyzer"),
		schemas: make(map[string]*jsonschema.Schema, len(responseSchemas)),
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(math.Max(1, math.Ceil(cfg.RPS))))
	}

	compiler := jsonschema.NewCompiler()
	for endpoint, src := range responseSchemas {
		url := "mem://textintel" + endpoint + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, errors.Wrapf(err, "add schema %s", endpoint)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, errors.Wrapf(err, "compile schema %s", endpoint)
		}
		c.schemas[endpoint] = schema
	}
	return c, nil
}

func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	var out struct {
		Language string `json:"language"`
	}
	if err := c.call(ctx, "/detect", map[string]any{"text": text}, &out); err != nil {
		return "", err
	}
	return out.Language, nil
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.call(ctx, "/translate", map[string]any{"text": text, "target": targetLang}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error) {
	var out domain.Sentiment
	if err := c.call(ctx, "/sentiment", map[string]any{"text": text}, &out); err != nil {
		return domain.Sentiment{}, err
	}
	out.Label = strings.ToLower(out.Label)
	return out, nil
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.call(ctx, "/summarize", map[string]any{"text": text}, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (c *Client) ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error) {
	var out struct {
		Entities []struct {
			Text  string `json:"text"`
			Type  string `json:"type"`
			Start int    `json:"start"`
			End   int    `json:"end"`
		} `json:"entities"`
	}
	if err := c.call(ctx, "/entities", map[string]any{"text": text}, &out); err != nil {
		return nil, err
	}
	entities := make([]domain.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, domain.Entity{
			Text: e.Text,
			Type: e.Type,
			Span: domain.Span{Start: e.Start, End: e.End},
		})
	}
	return entities, nil
}

func (c *Client) call(ctx context.Context, endpoint string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}

	reqID := uuid.NewString()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+endpoint, bytes.NewReader(bs))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("req_id", reqID), zap.String("endpoint", endpoint), zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return errors.Wrapf(err, "post %s", endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Wrapf(err, "read %s response", endpoint)
	}
	c.log.Debug("response", zap.String("req_id", reqID), zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode), zap.Int("bytes", len(raw)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, snippet(raw))
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrapf(ErrBadResponse, "%s: decode: %v", endpoint, err)
	}
	if err := c.schemas[endpoint].Validate(doc); err != nil {
		return errors.Wrapf(ErrBadResponse, "%s: %v", endpoint, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(ErrBadResponse, "%s: unmarshal: %v", endpoint, err)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
