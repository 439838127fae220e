package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"applypilot-engine/internal/domain"
)

var rePlaceholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// ExpandTemplate substitutes the recognized placeholders into a prompt
// template. The raw template is checked before substitution: a placeholder
// with no variable is a configuration error. Substituted values are data,
// never re-scanned, so brace tokens inside a scraped description or resume
// pass through untouched.
func ExpandTemplate(tpl string, vars map[string]string) (string, error) {
	for _, m := range rePlaceholder.FindAllStringSubmatch(tpl, -1) {
		if _, ok := vars[m[1]]; !ok {
			return "", fmt.Errorf("prompt template: unresolved placeholder {%s}", m[1])
		}
	}
	return rePlaceholder.ReplaceAllStringFunc(tpl, func(tok string) string {
		return vars[tok[1:len(tok)-1]]
	}), nil
}

const defaultScorePrompt = `You are an expert career counselor analyzing job-candidate match.

Job Title: {job_title}
Company: {company}
Location: {location}
Description: {description}

Candidate Resume:
{resume}

Score the match from 0-100 based on technical skills match, experience
level, domain relevance, location fit, and additional qualifications.

Provide a detailed analysis and return ONLY valid JSON:
{"score": <number 0-100>, "reasoning": "<2-3 sentences>", "key_matches": ["..."], "missing_skills": ["..."]}`

const defaultLetterPrompt = `Write a compelling, personalized cover letter that emphasizes the candidate's matching skills.

Relevance Score: {score}/100
Key Strengths: {key_matches}

Job Title: {job_title}
Company: {company}
Description: {description}

Candidate Resume:
{resume}

Start with "Dear {company} Hiring Team," and write 2-3 short paragraphs,
closing with "Regards," and the candidate's name. Professional but
personable tone. HTML format with <p> tags. Do not include links.`

// ScorePrompt builds the scoring prompt for a listing.
func ScorePrompt(listing domain.Listing, policy domain.Policy) (string, error) {
	return ExpandTemplate(defaultScorePrompt, map[string]string{
		"job_title":   listing.Title,
		"company":     listing.Company,
		"location":    listing.LocationRaw,
		"description": listing.Description,
		"resume":      policy.ResumeText,
	})
}

// LetterPrompt builds the message-generation prompt, preferring the
// tenant's custom template when one is configured.
func LetterPrompt(listing domain.Listing, policy domain.Policy, scored domain.ScoringResult) (string, error) {
	tpl := policy.PromptTemplate
	if strings.TrimSpace(tpl) == "" {
		tpl = defaultLetterPrompt
	}
	return ExpandTemplate(tpl, map[string]string{
		"job_title":   listing.Title,
		"company":     listing.Company,
		"location":    listing.LocationRaw,
		"description": listing.Description,
		"resume":      policy.ResumeText,
		"score":       fmt.Sprintf("%.0f", scored.Score),
		"key_matches": strings.Join(scored.KeyMatches, ", "),
	})
}

// HTMLify wraps plain paragraphs in <p> tags when the oracle ignored the
// format instruction, and appends the attachment footer.
func HTMLify(letter string, attachResume bool) string {
	letter = strings.TrimSpace(letter)
	if !strings.HasPrefix(letter, "<") {
		paras := strings.Split(letter, "\n\n")
		var b strings.Builder
		for _, p := range paras {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			b.WriteString("<p>" + p + "</p>\n")
		}
		letter = strings.TrimRight(b.String(), "\n")
	}
	if attachResume {
		letter += "\n<p><br></p>\n<p><em>I have attached my resume for your review. I look forward to discussing this opportunity further.</em></p>"
	} else {
		letter += "\n<p><br></p>\n<p><em>I look forward to discussing this opportunity further.</em></p>"
	}
	return letter
}
