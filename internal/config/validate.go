package config

import (
	"fmt"
	"regexp"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Placeholders the prompt template may use. Anything else in {braces} is a
// configuration error, caught here rather than at scoring time.
var knownPlaceholders = map[string]bool{
	"job_title":   true,
	"company":     true,
	"description": true,
	"resume":      true,
	"score":       true,
	"key_matches": true,
	"location":    true,
}

var rePlaceholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// NormalizeAndValidate returns a normalized copy plus everything wrong or
// suspicious about it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Filters.ExcludedCompanies = trimList(out.Filters.ExcludedCompanies)

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if strings.TrimSpace(out.Search.Query) == "" && !out.Alerts.Enabled {
		res.addErr("no listing source configured: set search.query or enable alerts")
	}
	if out.Search.MaxPages <= 0 {
		res.addWarn("search.max_pages not set; defaulting to 3")
	}

	if out.Filters.MaxDaysPosted <= 0 {
		res.addErr("filters.max_days_posted must be > 0")
	}
	if out.Filters.MaxApplicants < 0 {
		res.addErr("filters.max_applicants must be >= 0 (0 = unlimited)")
	}

	if out.Scoring.SendThreshold < 0 || out.Scoring.SendThreshold > 100 {
		res.addErr("scoring.send_threshold must be 0..100")
	}
	if tpl := out.Scoring.PromptTemplate; tpl != "" {
		for _, m := range rePlaceholder.FindAllStringSubmatch(tpl, -1) {
			if !knownPlaceholders[m[1]] {
				res.addErr("scoring.prompt_template: unknown placeholder {%s}", m[1])
			}
		}
	}

	if out.Contact.MaxAttempts <= 0 {
		res.addWarn("contact.max_attempts not set; defaulting to 3")
	}

	if out.Dispatch.SMTPHost != "" {
		if out.Dispatch.SMTPPort == 0 {
			res.addErr("dispatch.smtp_port is required when dispatch.smtp_host is set")
		}
		if strings.TrimSpace(out.Dispatch.SenderEmail) == "" {
			res.addErr("dispatch.sender_email is required when dispatch.smtp_host is set")
		}
	}

	if out.Alerts.Enabled {
		if strings.TrimSpace(out.Alerts.IMAPHost) == "" {
			res.addErr("alerts.imap_host is required when alerts.enabled=true")
		}
		if out.Alerts.IMAPPort == 0 {
			res.addErr("alerts.imap_port is required when alerts.enabled=true")
		}
		if strings.TrimSpace(out.Alerts.Username) == "" {
			res.addErr("alerts.username is required when alerts.enabled=true")
		}
	}

	if out.Pipeline.Workers > 32 {
		res.addWarn("pipeline.workers is very high (%d); outbound services may throttle you.", out.Pipeline.Workers)
	}

	return out, res
}
