package source

import (
	"regexp"
	"strconv"
	"strings"

	"applypilot-engine/internal/domain"
)

var (
	reDigits = regexp.MustCompile(`\d+`)
	reMoney  = regexp.MustCompile(`\d{1,3}(?:,\d{3})*(?:\.\d+)?`)
)

// parsePostedDays converts free-text posting age ("3 weeks ago", "today")
// to whole days. Unparseable text means very stale: it returns 999 so the
// age filter drops it rather than letting junk through.
func parsePostedDays(text string) int {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return 999
	}

	n := 1
	if m := reDigits.FindString(t); m != "" {
		n, _ = strconv.Atoi(m)
	}

	switch {
	case strings.Contains(t, "hour"), strings.Contains(t, "minute"), strings.Contains(t, "today"), strings.Contains(t, "just now"):
		return 0
	case strings.Contains(t, "yesterday"):
		return 1
	case strings.Contains(t, "day"):
		return n
	case strings.Contains(t, "week"):
		return n * 7
	case strings.Contains(t, "month"):
		return n * 30
	default:
		return 999
	}
}

// parseApplicantCount pulls the count out of "Over 200 applicants" style
// captions. Returns domain.ApplicantsUnknown when there is no number.
func parseApplicantCount(text string) int {
	if m := reDigits.FindString(text); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return domain.ApplicantsUnknown
}

// parseSalaryRange parses "$120,000 - $150,000/year" style text into
// min/max. One number means min == max; none means both zero.
func parseSalaryRange(text string) (min, max int) {
	nums := reMoney.FindAllString(text, -1)
	toInt := func(s string) int {
		f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		return int(f)
	}
	switch {
	case len(nums) >= 2:
		return toInt(nums[0]), toInt(nums[1])
	case len(nums) == 1:
		v := toInt(nums[0])
		return v, v
	default:
		return 0, 0
	}
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
