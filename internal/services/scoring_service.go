// internal/services/scoring_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
)

const (
	ScoringProviderHTTP   = "http"
	ScoringProviderGemini = "gemini"
)

type ApprovalScore struct {
	Approved               bool     `json:"is_approved"`
	ProbabilityOfApproval  float64  `json:"probability_of_approval"`
	ProbabilityOfRejection float64  `json:"probability_of_rejection"`
	ReasonOfRejection      string   `json:"reason_of_rejection"`
	TopReasons             []string `json:"top_reasons"`
	HasCode                *bool    `json:"has_code,omitempty"`
}

type LicenseTypePrediction struct {
	Type        string  `json:"type"`
	Probability float64 `json:"probability"`
}

// Scorer classifies certificate text.
type Scorer interface {
	ScoreForApproval(ctx context.Context, text, group string) (*ApprovalScore, error)
	PredictLicenseTypes(ctx context.Context, text string, candidates []string) ([]LicenseTypePrediction, error)
}

// AnomalyRecord is one row of an anomaly report, kept as returned by the
// scoring service.
type AnomalyRecord struct {
	raw gjson.Result
}

func NewAnomalyRecord(raw string) AnomalyRecord {
	return AnomalyRecord{raw: gjson.Parse(raw)}
}

func (r AnomalyRecord) Get(path string) gjson.Result {
	return r.raw.Get(path)
}

func (r AnomalyRecord) MarshalJSON() ([]byte, error) {
	if r.raw.Raw == "" {
		return []byte("null"), nil
	}
	return []byte(r.raw.Raw), nil
}

type AnomalyReporter interface {
	SupervisorAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error)
	EmployeeAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error)
}

// MLScoringClient talks to the scoring service over HTTP.
type MLScoringClient struct {
	client *resty.Client
}

var _ Scorer = (*MLScoringClient)(nil)
var _ AnomalyReporter = (*MLScoringClient)(nil)

func NewMLScoringClient(cfg config.ScoringConfig) *MLScoringClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &MLScoringClient{client: client}
}

func (c *MLScoringClient) ScoreForApproval(ctx context.Context, text, group string) (*ApprovalScore, error) {
	body, err := c.do(ctx, resty.MethodPost, "/evaluation/score", map[string]interface{}{
		"text":       text,
		"type_group": group,
	}, nil)
	if err != nil {
		return nil, err
	}
	return parseApprovalScore(body)
}

func (c *MLScoringClient) PredictLicenseTypes(ctx context.Context, text string, candidates []string) ([]LicenseTypePrediction, error) {
	body, err := c.do(ctx, resty.MethodPost, "/license-types/predict", map[string]interface{}{
		"text":       text,
		"candidates": candidates,
	}, nil)
	if err != nil {
		return nil, err
	}
	return parseTypePredictions(body), nil
}

func (c *MLScoringClient) SupervisorAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error) {
	return c.anomalies(ctx, "/anomalies/supervisors", startDate, endDate)
}

func (c *MLScoringClient) EmployeeAnomalies(ctx context.Context, startDate, endDate string) ([]AnomalyRecord, error) {
	return c.anomalies(ctx, "/anomalies/employees", startDate, endDate)
}

func (c *MLScoringClient) anomalies(ctx context.Context, endpoint, startDate, endDate string) ([]AnomalyRecord, error) {
	query := map[string]string{}
	if startDate != "" {
		query["start_date"] = startDate
	}
	if endDate != "" {
		query["end_date"] = endDate
	}

	body, err := c.do(ctx, resty.MethodGet, endpoint, nil, query)
	if err != nil {
		return nil, err
	}

	rows := gjson.Parse(body)
	if !rows.IsArray() {
		rows = rows.Get("data")
	}

	records := []AnomalyRecord{}
	rows.ForEach(func(_, row gjson.Result) bool {
		if row.IsObject() {
			records = append(records, AnomalyRecord{raw: row})
		}
		return true
	})
	return records, nil
}

func (c *MLScoringClient) do(ctx context.Context, method, endpoint string, payload interface{}, query map[string]string) (string, error) {
	start := time.Now()
	req := c.client.R().SetContext(ctx)
	if payload != nil {
		req.SetBody(payload)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, endpoint)
	metrics.ScoringRequestDuration.WithLabelValues(ScoringProviderHTTP, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("scoring request %s failed: %w", endpoint, err)
	}
	if resp.IsError() {
		message := gjson.Get(resp.String(), "error").String()
		if message == "" {
			message = resp.Status()
		}
		return "", fmt.Errorf("scoring service returned %d for %s: %s", resp.StatusCode(), endpoint, message)
	}
	return resp.String(), nil
}

// GeminiScorer asks a Gemini model for the same signals.
type GeminiScorer struct {
	client *genai.Client
	model  string
}

var _ Scorer = (*GeminiScorer)(nil)

func NewGeminiScorer(ctx context.Context, cfg config.ScoringConfig) (*GeminiScorer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiScorer{client: client, model: cfg.GeminiModel}, nil
}

func (g *GeminiScorer) ScoreForApproval(ctx context.Context, text, group string) (*ApprovalScore, error) {
	prompt := fmt.Sprintf(`You review medical and supporting certificates attached to employee leave requests.
The leave request belongs to the %q category.
Return STRICTLY a JSON object with this schema:
{
  "approved": <true|false>,
  "probability_of_approval": <float 0-1>,
  "probability_of_rejection": <float 0-1>,
  "reason_of_rejection": "<short reason, empty when approved>",
  "top_reasons": ["<reason>", ...],
  "has_code": <true when the document carries a code like HFCOD123>
}

Certificate text:
%s`, group, text)

	body, err := g.generate(ctx, "score_for_approval", prompt)
	if err != nil {
		return nil, err
	}
	return parseApprovalScore(body)
}

func (g *GeminiScorer) PredictLicenseTypes(ctx context.Context, text string, candidates []string) ([]LicenseTypePrediction, error) {
	prompt := fmt.Sprintf(`Classify the certificate below into the leave types it supports.
Allowed types: %s
Return STRICTLY a JSON object: {"license_types": [{"type": "<allowed type>", "probability": <float 0-1>}, ...]}
ordered by probability, at most three entries.

Certificate text:
%s`, strings.Join(candidates, ", "), text)

	body, err := g.generate(ctx, "predict_license_types", prompt)
	if err != nil {
		return nil, err
	}
	return parseTypePredictions(body), nil
}

func (g *GeminiScorer) generate(ctx context.Context, endpoint, prompt string) (string, error) {
	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
	})
	metrics.ScoringRequestDuration.WithLabelValues(ScoringProviderGemini, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```")
	if !gjson.Valid(text) {
		return "", fmt.Errorf("model returned invalid JSON")
	}
	return text, nil
}

// NewScorer builds the scorer selected by configuration.
func NewScorer(ctx context.Context, cfg config.ScoringConfig, httpClient *MLScoringClient) (Scorer, error) {
	switch cfg.Provider {
	case ScoringProviderGemini:
		return NewGeminiScorer(ctx, cfg)
	case ScoringProviderHTTP, "":
		return httpClient, nil
	}
	return nil, fmt.Errorf("unknown scoring provider %q", cfg.Provider)
}

func parseApprovalScore(body string) (*ApprovalScore, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("invalid scoring response")
	}
	result := gjson.Parse(body)
	if message := result.Get("error"); message.Exists() {
		return nil, fmt.Errorf("scoring failed: %s", message.String())
	}

	score := &ApprovalScore{
		Approved:               result.Get("approved").Bool(),
		ProbabilityOfApproval:  result.Get("probability_of_approval").Float(),
		ProbabilityOfRejection: result.Get("probability_of_rejection").Float(),
		ReasonOfRejection:      result.Get("reason_of_rejection").String(),
		TopReasons:             []string{},
	}

	reasons := result.Get("top_reasons")
	if reasons.IsArray() {
		for _, reason := range reasons.Array() {
			score.TopReasons = append(score.TopReasons, reason.String())
		}
	} else if reasons.String() != "" {
		score.TopReasons = append(score.TopReasons, reasons.String())
	}

	if hasCode := result.Get("has_code"); hasCode.Exists() {
		value := hasCode.Bool()
		score.HasCode = &value
	}
	return score, nil
}

func parseTypePredictions(body string) []LicenseTypePrediction {
	predictions := []LicenseTypePrediction{}
	result := gjson.Parse(body)
	if !result.IsArray() {
		result = result.Get("license_types")
	}

	for _, item := range result.Array() {
		if item.IsObject() {
			predictions = append(predictions, LicenseTypePrediction{
				Type:        item.Get("type").String(),
				Probability: item.Get("probability").Float(),
			})
			continue
		}
		predictions = append(predictions, LicenseTypePrediction{Type: item.String()})
	}
	return predictions
}
