package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"log/slog"

	"applypilot-engine/internal/domain"
)

// Greenhouse reads public ATS boards (boards.greenhouse.io/<slug>) for a
// fixed set of companies. Boards only list live roles, so postings count
// as fresh.
type Greenhouse struct {
	baseURL string
	boards  []Board
	http    *http.Client
	log     *slog.Logger
}

// Board is one company's Greenhouse presence.
type Board struct {
	Slug string // boards.greenhouse.io/<slug>
	Name string // display name for the listing
}

const greenhouseBaseURL = "https://boards.greenhouse.io"

func NewGreenhouse(boards []Board, logger *slog.Logger) *Greenhouse {
	return newGreenhouse(greenhouseBaseURL, boards, logger)
}

func newGreenhouse(baseURL string, boards []Board, logger *slog.Logger) *Greenhouse {
	if logger == nil {
		logger = slog.Default()
	}
	return &Greenhouse{
		baseURL: strings.TrimRight(baseURL, "/"),
		boards:  boards,
		http:    &http.Client{Timeout: 20 * time.Second},
		log:     logger,
	}
}

func (s *Greenhouse) Name() string { return "greenhouse" }

var reGreenhouseJobID = regexp.MustCompile(`/jobs/(\d+)`)

func (s *Greenhouse) Open(ctx context.Context, opts FetchOptions) (Iterator, error) {
	var all []domain.Listing
	for _, b := range s.boards {
		listings, err := s.fetchBoard(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// one dead board must not kill the whole run
			s.log.Warn("greenhouse: board fetch failed", "slug", b.Slug, "error", err)
			continue
		}
		all = append(all, listings...)
	}
	return &sliceIter{listings: all}, nil
}

func (s *Greenhouse) fetchBoard(ctx context.Context, b Board) ([]domain.Listing, error) {
	boardURL := s.baseURL + "/" + b.Slug

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, boardURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "applypilot/1.0 (+local)")

	res, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: board status %d", domain.ErrSourceUnavailable, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []domain.Listing
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = s.baseURL + href
		}
		if !strings.HasPrefix(href, s.baseURL) {
			return
		}

		m := reGreenhouseJobID.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := "greenhouse:" + b.Slug + ":" + m[1]
		if seen[id] {
			return
		}
		seen[id] = true

		out = append(out, domain.Listing{
			ID:             id,
			Title:          cleanText(a.Text()),
			Company:        b.Name,
			DetailURL:      stripQuery(href),
			PostedDaysAgo:  0,
			ApplicantCount: domain.ApplicantsUnknown,
			Source:         "greenhouse",
		})
	})
	return out, nil
}
