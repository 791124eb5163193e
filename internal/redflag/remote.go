package redflag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

// RemoteJudge is the LLM-backed classifier. It calls an external judge
// service that interprets free-text answers against natural-language
// trigger guidance, and doubles as the leveler for rubric scoring.
//
// Latency and availability are the judge service's concern; this client
// only enforces a timeout and maps transport failures to
// ErrClassifierUnavailable so the detector can fail open.
type RemoteJudge struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewRemoteJudge creates a judge client from configuration.
func NewRemoteJudge(cfg domain.ClassifierConfig) (*RemoteJudge, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote judge endpoint is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteJudge{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name identifies the classifier in decision traces.
func (j *RemoteJudge) Name() string { return "remote-judge" }

type classifyRequest struct {
	Model    string `json:"model,omitempty"`
	Text     string `json:"text"`
	Guidance string `json:"guidance"`
}

type classifyResponse struct {
	Triggered  bool    `json:"triggered"`
	Confidence float64 `json:"confidence"`
}

// Classify judges a single hook against a response text.
func (j *RemoteJudge) Classify(ctx context.Context, text string, hook domain.RedFlagHook) (domain.Classification, error) {
	req := classifyRequest{
		Model:    j.model,
		Text:     text,
		Guidance: hook.TriggerGuidance.Resolve("en"),
	}

	var resp classifyResponse
	if err := j.post(ctx, "/classify", req, &resp); err != nil {
		return domain.Classification{}, err
	}

	return domain.Classification{
		Triggered:  resp.Triggered,
		Confidence: resp.Confidence,
	}, nil
}

type levelRequest struct {
	Model   string        `json:"model,omitempty"`
	Text    string        `json:"text"`
	Locale  string        `json:"locale,omitempty"`
	Anchors []levelAnchor `json:"anchors"`
}

type levelAnchor struct {
	Level  int    `json:"level"`
	Anchor string `json:"anchor"`
}

type levelResponse struct {
	Level     int    `json:"level"`
	Rationale string `json:"rationale,omitempty"`
}

// LevelAnswer maps a free-text answer onto a rubric level using the
// rubric's anchor descriptions.
func (j *RemoteJudge) LevelAnswer(ctx context.Context, text string, rubric domain.ScoringRubric, locale string) (int, string, error) {
	req := levelRequest{
		Model:  j.model,
		Text:   text,
		Locale: locale,
	}
	for _, l := range rubric.Levels {
		req.Anchors = append(req.Anchors, levelAnchor{
			Level:  l.Level,
			Anchor: l.Anchor.Resolve(locale),
		})
	}

	var resp levelResponse
	if err := j.post(ctx, "/level", req, &resp); err != nil {
		return 0, "", err
	}

	return resp.Level, resp.Rationale, nil
}

// post sends a request to the judge service and decodes the response.
func (j *RemoteJudge) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create judge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	httpResp, err := j.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return fmt.Errorf("%w: judge returned %d", domain.ErrClassifierUnavailable, httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return fmt.Errorf("judge returned %d: %s", httpResp.StatusCode, respBody)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode judge response: %w", err)
	}
	return nil
}
