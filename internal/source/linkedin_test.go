package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"applypilot-engine/internal/domain"
)

// hrefs are absolute so detail fetches stay inside the test server
func searchPageHTML(base string) string {
	return `<html><body><ul>
<li>
  <a href="` + base + `/jobs/view/senior-go-engineer-at-initech-4001?refId=abc">Senior Go Engineer</a>
  <h3>Senior Go Engineer</h3>
  <h4>Initech</h4>
  <span class="job-search-card__location">Austin, TX</span>
  <time>2 days ago</time>
</li>
<li>
  <a href="` + base + `/jobs/view/4002?trk=xyz">Platform Engineer</a>
  <h3>Platform Engineer</h3>
  <h4>Hooli</h4>
  <span class="job-search-card__location">Remote</span>
  <time>1 week ago</time>
</li>
<li>
  <a href="` + base + `/jobs/view/anchor-without-title-4003"></a>
</li>
</ul></body></html>`
}

const detailPageHTML = `<html><body>
<h1 class="topcard__title">Senior Go Engineer</h1>
<a class="topcard__org-name-link">Initech</a>
<span class="posted-time-ago__text">2 days ago</span>
<span class="num-applicants__caption">Over 57 applicants</span>
<div class="compensation__salary">$140,000 - $170,000/year</div>
<div class="show-more-less-html__markup">Build and run Go services for the traffic platform.</div>
</body></html>`

func collectAll(t *testing.T, it Iterator) []domain.Listing {
	t.Helper()
	var out []domain.Listing
	for {
		l, err := it.Next(context.Background())
		if errors.Is(err, ErrDone) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, l)
	}
}

func TestLinkedInIteratesSearchAndDetail(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") != "" {
			fmt.Fprint(w, "<html><body></body></html>") // second page empty
			return
		}
		if r.URL.Query().Get("keywords") != "golang" {
			t.Errorf("keywords = %q", r.URL.Query().Get("keywords"))
		}
		fmt.Fprint(w, searchPageHTML(base))
	})
	mux.HandleFunc("/jobs/view/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "4001") {
			// detail page down for this one; iterator falls back to the summary
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, detailPageHTML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	src := NewLinkedIn(LinkedInConfig{BaseURL: srv.URL + "/search", RequestsPerSec: 1000}, nil)
	it, err := src.Open(context.Background(), FetchOptions{Query: "golang", MaxPages: 2})
	if err != nil {
		t.Fatal(err)
	}

	got := collectAll(t, it)
	if len(got) != 2 {
		t.Fatalf("listings = %d, want 2 (titleless anchor dropped)", len(got))
	}

	first := got[0]
	if first.ID != "4001" {
		t.Errorf("id = %q, want 4001", first.ID)
	}
	if first.Company != "Initech" || first.Title != "Senior Go Engineer" {
		t.Errorf("summary fields: %+v", first)
	}
	if first.ApplicantCount != 57 {
		t.Errorf("applicants = %d, want 57 from detail page", first.ApplicantCount)
	}
	if first.SalaryMin != 140000 || first.SalaryMax != 170000 {
		t.Errorf("salary = %d-%d", first.SalaryMin, first.SalaryMax)
	}
	if first.Description == "" {
		t.Error("description not captured from detail page")
	}
	// second listing's detail page was down: summary fields survive
	second := got[1]
	if second.ID != "4002" || second.Company != "Hooli" || second.PostedDaysAgo != 7 {
		t.Errorf("summary fallback fields: %+v", second)
	}
	if second.Description != "" {
		t.Errorf("unexpected description on fallback listing: %q", second.Description)
	}
}

func TestLinkedInRateLimitedIsRetryable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	src := NewLinkedIn(LinkedInConfig{BaseURL: srv.URL, RequestsPerSec: 1000}, nil)
	it, err := src.Open(context.Background(), FetchOptions{Query: "go", MaxPages: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := it.Next(context.Background()); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("first Next err = %v, want ErrRateLimited", err)
	}
	// throttling is not sticky: the retried call proceeds
	if _, err := it.Next(context.Background()); !errors.Is(err, ErrDone) {
		t.Fatalf("second Next err = %v, want ErrDone", err)
	}
}

func TestLinkedInBlockedIsSticky(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewLinkedIn(LinkedInConfig{BaseURL: srv.URL, RequestsPerSec: 1000}, nil)
	it, err := src.Open(context.Background(), FetchOptions{Query: "go", MaxPages: 3})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := it.Next(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	// sticky: no further requests are attempted
	if _, err := it.Next(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("second err = %v, want sticky ErrSourceUnavailable", err)
	}
}

func TestStripQuery(t *testing.T) {
	got := stripQuery("/jobs/view/engineer-4001?refId=abc&trk=x")
	want := "https://www.linkedin.com/jobs/view/engineer-4001"
	if got != want {
		t.Errorf("stripQuery = %q, want %q", got, want)
	}
}
