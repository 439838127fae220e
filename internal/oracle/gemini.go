package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"applypilot-engine/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient scores listings via the generative-language HTTP API.
type GeminiClient struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

func NewGeminiClient(cfg GeminiConfig, logger *slog.Logger) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger,
	}
}

// Score asks the oracle for a relevance score and, when the score meets the
// send threshold, a generated message. The second call is skipped for
// low-scoring jobs so they cost one request, not two.
func (c *GeminiClient) Score(ctx context.Context, listing domain.Listing, policy domain.Policy) (domain.ScoringResult, error) {
	prompt, err := ScorePrompt(listing, policy)
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: %v", domain.ErrOracleRejected, err)
	}

	start := time.Now()
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return domain.ScoringResult{}, err
	}

	result := parseScoringJSON(text)
	result.Score = Clamp(result.Score)

	c.log.Info("oracle: scored listing",
		"listing_id", listing.ID,
		"company", listing.Company,
		"score", result.Score,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if result.Score < policy.SendThreshold {
		return result, nil
	}

	letterPrompt, err := LetterPrompt(listing, policy, result)
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: %v", domain.ErrOracleRejected, err)
	}
	letter, err := c.generate(ctx, letterPrompt)
	if err != nil {
		return domain.ScoringResult{}, err
	}
	result.GeneratedMessage = HTMLify(letter, policy.AttachResume)

	return result, nil
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", domain.ErrOracleRejected, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrOracleRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		// transport failures and deadline hits are retryable
		return "", fmt.Errorf("%w: %v", domain.ErrOracleTimeout, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", domain.ErrOracleTimeout, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrOracleRejected, resp.StatusCode, truncate(string(raw), 200))
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrOracleRejected, err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", domain.ErrOracleRejected)
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}

var (
	reFence     = regexp.MustCompile("```(?:json)?\n?|```\n?")
	reScoreOnly = regexp.MustCompile(`"?score"?\s*:\s*(\d+(?:\.\d+)?)`)
)

// parseScoringJSON decodes the oracle's JSON reply. The oracle sometimes
// wraps JSON in markdown fences or returns junk around it; as a last
// resort the score alone is pulled out with a regex, so a
// sloppy-but-salvageable reply never fails the record.
func parseScoringJSON(text string) domain.ScoringResult {
	cleaned := strings.TrimSpace(reFence.ReplaceAllString(text, ""))

	var payload struct {
		Score         float64  `json:"score"`
		Reasoning     string   `json:"reasoning"`
		KeyMatches    []string `json:"key_matches"`
		MissingSkills []string `json:"missing_skills"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return domain.ScoringResult{
			Score:         payload.Score,
			Reasoning:     payload.Reasoning,
			KeyMatches:    payload.KeyMatches,
			MissingSkills: payload.MissingSkills,
		}
	}

	var result domain.ScoringResult
	if m := reScoreOnly.FindStringSubmatch(cleaned); m != nil {
		result.Score, _ = strconv.ParseFloat(m[1], 64)
		result.Reasoning = "failed to parse oracle response"
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
