package source

import (
	"strings"
	"testing"
)

const alertHTML = `<html><body>
<table>
  <tr><td>
    <a href="https://www.linkedin.com/comm/jobs/view/backend-engineer-at-initech-7001?trackingId=x">
      Backend Engineer
    </a>
    <a href="https://www.linkedin.com/comm/jobs/view/backend-engineer-at-initech-7001?trk=logo"><img/></a>
    <p>Initech · Austin, TX</p>
    <p>Actively recruiting</p>
  </td></tr>
</table>
<table>
  <tr><td>
    <a href="https://www.google.com/url?url=https://www.linkedin.com/jobs/view/7002">
      Site Reliability Engineer
    </a>
    <p>Hooli · Remote</p>
  </td></tr>
</table>
<a href="https://www.linkedin.com/jobs/view/7003">Easy Apply</a>
<a href="https://www.linkedin.com/in/some-person">Jane Recruiter</a>
</body></html>`

func TestParseAlertHTML(t *testing.T) {
	got, err := parseAlertHTML(alertHTML)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("listings = %d, want 2 (badge-only and profile anchors dropped): %+v", len(got), got)
	}

	first := got[0]
	if first.ID != "7001" {
		t.Errorf("id = %q", first.ID)
	}
	if first.Title != "Backend Engineer" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Company != "Initech" || first.LocationRaw != "Austin, TX" {
		t.Errorf("company/location = %q / %q", first.Company, first.LocationRaw)
	}
	if strings.Contains(first.DetailURL, "?") {
		t.Errorf("tracking params survived: %q", first.DetailURL)
	}

	// wrapped redirect unwrapped to the real job URL
	second := got[1]
	if second.ID != "7002" {
		t.Errorf("id = %q", second.ID)
	}
	if !strings.HasPrefix(second.DetailURL, "https://www.linkedin.com/jobs/view/7002") {
		t.Errorf("detail url = %q", second.DetailURL)
	}
	if second.Company != "Hooli" || second.LocationRaw != "Remote" {
		t.Errorf("company/location = %q / %q", second.Company, second.LocationRaw)
	}
}

func TestLooksLikeJobAlert(t *testing.T) {
	if !looksLikeJobAlert("LinkedIn Job Alerts <jobalerts-noreply@linkedin.com>", "30 new jobs", "") {
		t.Error("sender address alone should qualify")
	}
	if !looksLikeJobAlert("other@example.com", "Your job alert digest",
		`<a href="https://www.linkedin.com/jobs/view/1">x</a>`) {
		t.Error("subject plus job links should qualify")
	}
	if looksLikeJobAlert("newsletter@example.com", "Weekly digest", "nothing relevant") {
		t.Error("unrelated mail should not qualify")
	}
}

func TestStripAlertJunk(t *testing.T) {
	if got := stripAlertJunk("Backend Engineer Actively recruiting"); got != "Backend Engineer" {
		t.Errorf("got %q", got)
	}
	if got := stripAlertJunk("5 connections work here"); got != "" {
		t.Errorf("got %q, want empty for social chrome", got)
	}
}

func TestUnwrapRedirect(t *testing.T) {
	got := unwrapRedirect("https://www.google.com/url?url=https://www.linkedin.com/jobs/view/42")
	if got != "https://www.linkedin.com/jobs/view/42" {
		t.Errorf("got %q", got)
	}
	// no wrapper: unchanged
	direct := "https://www.linkedin.com/jobs/view/43?x=1"
	if got := unwrapRedirect(direct); got != direct {
		t.Errorf("got %q", got)
	}
}
