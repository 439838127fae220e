package source

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"applypilot-engine/internal/domain"
)

func looksLikeJobAlert(from, subject, body string) bool {
	f := strings.ToLower(from)
	if strings.Contains(f, "jobalerts-noreply") {
		return true
	}
	s := strings.ToLower(subject)
	if strings.Contains(s, "job alert") || strings.Contains(s, "linkedin") {
		b := strings.ToLower(body)
		return strings.Contains(b, "linkedin.com/comm/jobs/view") ||
			strings.Contains(b, "linkedin.com/jobs/view")
	}
	return false
}

// parseAlertHTML extracts job cards from an alert email body. Alert
// templates scatter several anchors per job (logo, title, footer), so
// anchors are merged by job id before emitting.
func parseAlertHTML(htmlBody string) ([]domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	byID := map[string]*domain.Listing{}
	var order []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lh := strings.ToLower(href)
		if !strings.Contains(lh, "linkedin.com") ||
			!(strings.Contains(lh, "/jobs/view/") || strings.Contains(lh, "/comm/jobs/view/")) {
			return
		}

		jobURL := unwrapRedirect(href)
		m := reJobID.FindStringSubmatch(jobURL)
		if m == nil {
			return
		}
		id := m[1]

		l, ok := byID[id]
		if !ok {
			l = &domain.Listing{
				ID:             id,
				DetailURL:      stripQuery(jobURL),
				ApplicantCount: domain.ApplicantsUnknown,
				Source:         "alerts",
			}
			byID[id] = l
			order = append(order, id)
		}

		if cand := stripAlertJunk(cleanText(a.Text())); betterAlertTitle(cand, l.Title) {
			l.Title = cand
		}

		card := a.Closest("table")
		if card.Length() == 0 {
			card = a.Closest("tr")
		}
		if card.Length() == 0 {
			card = a.Parent()
		}

		// Company · Location is usually in a <p>
		card.Find("p").Each(func(_ int, p *goquery.Selection) {
			t := cleanText(p.Text())
			if t == "" {
				return
			}
			if l.Company == "" && l.LocationRaw == "" && strings.Contains(t, " · ") {
				parts := strings.SplitN(t, " · ", 2)
				l.Company = strings.TrimSpace(parts[0])
				l.LocationRaw = strings.TrimSpace(parts[1])
			}
		})
	})

	out := make([]domain.Listing, 0, len(order))
	for _, id := range order {
		l := byID[id]
		if l.Title == "" {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if raw := u.Query().Get("url"); raw != "" {
		if uu, err := url.Parse(raw); err == nil && uu.Host != "" {
			return uu.String()
		}
	}
	if u.Host != "" {
		return u.String()
	}
	return href
}

func stripAlertJunk(s string) string {
	for _, b := range []string{"Actively recruiting", "Easy Apply", "Promoted"} {
		s = strings.TrimSpace(strings.ReplaceAll(s, b, ""))
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "alumni") ||
		strings.Contains(low, "connections") ||
		strings.Contains(low, "applicants") {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

func betterAlertTitle(candidate, current string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" || strings.Contains(c, " · ") {
		return false
	}
	// prefer longer, word-ier candidates; short anchors are usually badges
	return len(strings.Fields(c)) >= 2 && len(c) > len(current)
}

// extractHTMLPart walks the MIME structure of a raw RFC822 message and
// returns the first text/html part, decoded.
func extractHTMLPart(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(msg.Body, 25<<20))
	return findHTML(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), body)
}

func findHTML(contentType, cte string, body []byte) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case mediaType == "text/html":
		return string(decodeTransferEncoding(body, strings.ToLower(strings.TrimSpace(cte))))
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return ""
		}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				return ""
			}
			pb, _ := io.ReadAll(io.LimitReader(part, 25<<20))
			if h := findHTML(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), pb); h != "" {
				return h
			}
		}
	default:
		return ""
	}
}

func decodeTransferEncoding(b []byte, cte string) []byte {
	switch cte {
	case "quoted-printable":
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(b)))
		if err != nil {
			return b
		}
		return out
	case "base64":
		out, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b)))
		if err != nil {
			return b
		}
		return out
	default:
		return b
	}
}
