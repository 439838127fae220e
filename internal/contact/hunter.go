// Package contact resolves a company name to a candidate contact address
// via an external directory service. Absence of a contact is a normal
// outcome, not an error.
package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"applypilot-engine/internal/domain"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Resolver looks up one contact address for a company.
type Resolver interface {
	Resolve(ctx context.Context, companyName string) (string, error)
}

// HunterClient queries the hunter.io domain-search endpoint,
// HR department first.
type HunterClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

type HunterConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHunterClient(cfg HunterConfig, logger *slog.Logger) *HunterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HunterClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger,
	}
}

// Resolve searches by company name first, then falls back to a guessed
// <company>.com domain. Returns domain.ErrContactNotFound when the
// directory has nothing, domain.ErrResolverUnavailable on transport or
// server trouble.
func (c *HunterClient) Resolve(ctx context.Context, companyName string) (string, error) {
	addr, err := c.domainSearch(ctx, url.Values{"company": {companyName}})
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, domain.ErrContactNotFound) {
		return "", err
	}

	fallback := strings.ToLower(strings.ReplaceAll(companyName, " ", "")) + ".com"
	c.log.Debug("contact: company search empty, trying fallback domain",
		"company", companyName, "domain", fallback)
	return c.domainSearch(ctx, url.Values{"domain": {fallback}})
}

func (c *HunterClient) domainSearch(ctx context.Context, params url.Values) (string, error) {
	params.Set("api_key", c.apiKey)
	params.Set("department", "hr")
	params.Set("limit", "5")

	endpoint := c.baseURL + "/domain-search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrResolverUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", domain.ErrResolverUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return "", domain.ErrContactNotFound
	default:
		// 4xx other than 404: bad key, bad request. Still "unavailable" for
		// this record; the retry budget caps how long we bang on it.
		return "", fmt.Errorf("%w: status %d", domain.ErrResolverUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrResolverUnavailable, err)
	}

	var payload struct {
		Data struct {
			Domain string `json:"domain"`
			Emails []struct {
				Value string `json:"value"`
			} `json:"emails"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: decode: %v", domain.ErrResolverUnavailable, err)
	}

	for _, e := range payload.Data.Emails {
		if strings.TrimSpace(e.Value) != "" {
			return e.Value, nil
		}
	}
	return "", domain.ErrContactNotFound
}
