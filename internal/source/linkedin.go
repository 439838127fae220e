package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"applypilot-engine/internal/domain"
)

const (
	linkedInSearchURL = "https://www.linkedin.com/jobs/search"
	browserUA         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	pageSize          = 25
)

var reJobID = regexp.MustCompile(`/jobs/view/(?:[^/?#]*-)?(\d+)`)

// LinkedIn scrapes the public jobs search. Listings come back in two hops:
// the search page yields id/title/company/posted summaries, and Next
// lazily fetches the detail page for the description and applicant count.
type LinkedIn struct {
	baseURL string
	http    *http.Client
	limiter *HostLimiter
	log     *slog.Logger
}

type LinkedInConfig struct {
	BaseURL        string // override for tests
	RequestsPerSec float64
}

func NewLinkedIn(cfg LinkedInConfig, logger *slog.Logger) *LinkedIn {
	if cfg.BaseURL == "" {
		cfg.BaseURL = linkedInSearchURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkedIn{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: NewHostLimiter(cfg.RequestsPerSec, 1),
		log:     logger,
	}
}

func (s *LinkedIn) Name() string { return "linkedin" }

func (s *LinkedIn) Open(ctx context.Context, opts FetchOptions) (Iterator, error) {
	if opts.Query == "" {
		// alerts-only setups have no saved search to scrape
		return &sliceIter{}, nil
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	return &linkedInIter{src: s, opts: opts}, nil
}

type linkedInIter struct {
	src     *LinkedIn
	opts    FetchOptions
	pending []domain.Listing // summaries awaiting detail fetch
	page    int
	done    bool
	failed  error // terminal failure, sticky
}

func (it *linkedInIter) Next(ctx context.Context) (domain.Listing, error) {
	if it.failed != nil {
		return domain.Listing{}, it.failed
	}

	for len(it.pending) == 0 {
		if it.done || it.page >= it.opts.MaxPages {
			return domain.Listing{}, ErrDone
		}
		batch, err := it.src.fetchSearchPage(ctx, it.opts, it.page)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Listing{}, ctx.Err()
			}
			if errors.Is(err, domain.ErrRateLimited) {
				// not sticky: caller backs off and calls Next again
				return domain.Listing{}, err
			}
			it.failed = err
			return domain.Listing{}, err
		}
		it.page++
		if len(batch) == 0 {
			it.done = true
		}
		it.pending = append(it.pending, batch...)
	}

	head := it.pending[0]

	full, err := it.src.fetchDetail(ctx, it.opts, head)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			return domain.Listing{}, err // retryable, head stays queued
		}
		// detail fetch failed for this one listing: yield the summary
		// as-is rather than losing the posting entirely
		it.src.log.Warn("linkedin: detail fetch failed, using summary",
			"listing_id", head.ID, "error", err)
		full = head
	}

	it.pending = it.pending[1:]
	return full, nil
}

func (s *LinkedIn) fetchSearchPage(ctx context.Context, opts FetchOptions, page int) ([]domain.Listing, error) {
	q := url.Values{}
	q.Set("keywords", opts.Query)
	if page > 0 {
		q.Set("start", fmt.Sprint(page*pageSize))
	}

	body, err := s.get(ctx, s.baseURL+"?"+q.Encode(), opts.SessionCookie)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse search page: %v", domain.ErrSourceUnavailable, err)
	}

	byID := map[string]*domain.Listing{}
	var order []string

	doc.Find("a[href*='/jobs/view/']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := reJobID.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]

		l, ok := byID[id]
		if !ok {
			l = &domain.Listing{
				ID:             id,
				DetailURL:      stripQuery(href),
				ApplicantCount: domain.ApplicantsUnknown,
				Source:         s.Name(),
			}
			byID[id] = l
			order = append(order, id)
		}

		card := a.Closest("li")
		if card.Length() == 0 {
			card = a.Parent()
		}
		if l.Title == "" {
			l.Title = cleanText(card.Find("h3").First().Text())
		}
		if l.Title == "" {
			l.Title = cleanText(a.Text())
		}
		if l.Company == "" {
			l.Company = cleanText(card.Find("h4").First().Text())
		}
		if l.LocationRaw == "" {
			l.LocationRaw = cleanText(card.Find(".job-search-card__location").First().Text())
		}
		if posted := cleanText(card.Find("time").First().Text()); posted != "" {
			l.PostedDaysAgo = parsePostedDays(posted)
		}
	})

	out := make([]domain.Listing, 0, len(order))
	for _, id := range order {
		if byID[id].Title != "" {
			out = append(out, *byID[id])
		}
	}

	s.log.Info("linkedin: search page parsed", "page", page, "listings", len(out))
	return out, nil
}

func (s *LinkedIn) fetchDetail(ctx context.Context, opts FetchOptions, l domain.Listing) (domain.Listing, error) {
	body, err := s.get(ctx, l.DetailURL, opts.SessionCookie)
	if err != nil {
		return l, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return l, fmt.Errorf("parse detail page: %w", err)
	}

	if t := cleanText(doc.Find("h1.top-card-layout__title, h1.topcard__title").First().Text()); t != "" {
		l.Title = t
	}
	if c := cleanText(doc.Find("a.topcard__org-name-link, a.top-card-layout__company-url").First().Text()); c != "" {
		l.Company = c
	}
	if loc := cleanText(doc.Find("span.topcard__flavor--bullet").First().Text()); loc != "" && l.LocationRaw == "" {
		l.LocationRaw = loc
	}
	if posted := cleanText(doc.Find("span.posted-time-ago__text").First().Text()); posted != "" {
		l.PostedDaysAgo = parsePostedDays(posted)
	}
	if appl := cleanText(doc.Find("span.num-applicants__caption").First().Text()); appl != "" {
		l.ApplicantCount = parseApplicantCount(appl)
	}
	if sal := cleanText(doc.Find("div.compensation__salary, div[class*='salary'] span").First().Text()); sal != "" {
		l.SalaryMin, l.SalaryMax = parseSalaryRange(sal)
	}
	l.Description = cleanText(doc.Find("div.show-more-less-html__markup, div.description__text").First().Text())

	return l, nil
}

// get performs one throttled request. 429 maps to domain.ErrRateLimited;
// auth walls and block pages map to domain.ErrSourceUnavailable.
func (s *LinkedIn) get(ctx context.Context, rawURL, cookie string) (string, error) {
	if err := s.limiter.WaitURL(ctx, rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "li_at", Value: cookie})
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status 429", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	final := resp.Request.URL.String()
	if strings.Contains(strings.ToLower(final), "login") || strings.Contains(strings.ToLower(final), "challenge") {
		return "", fmt.Errorf("%w: redirected to login/challenge", domain.ErrSourceUnavailable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrSourceUnavailable, err)
	}
	return string(raw), nil
}

func stripQuery(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	if strings.HasPrefix(href, "/") {
		href = "https://www.linkedin.com" + href
	}
	return href
}
