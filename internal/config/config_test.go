package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	var cfg Config
	cfg.App.Port = 38471
	cfg.Search.Query = "golang backend"
	cfg.Search.MaxPages = 3
	cfg.Filters.MaxDaysPosted = 14
	cfg.Scoring.SendThreshold = 70
	cfg.Contact.MaxAttempts = 3
	return cfg
}

func TestEnsureUserConfigSeedsDefaults(t *testing.T) {
	dir := t.TempDir()

	path, err := EnsureUserConfig(dir, filepath.Join(dir, "no-such-default.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "config.yml") {
		t.Fatalf("path = %s", path)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Port != 38471 {
		t.Errorf("port = %d", cfg.App.Port)
	}
	if cfg.Scoring.SendThreshold != 70 {
		t.Errorf("threshold = %v", cfg.Scoring.SendThreshold)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.DispatchRPS != 0.5 {
		t.Errorf("pipeline defaults = %+v", cfg.Pipeline)
	}

	// A second call must not clobber the existing file.
	if err := os.WriteFile(path, []byte("app:\n  port: 9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureUserConfig(dir, ""); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Port != 9999 {
		t.Errorf("existing config overwritten, port = %d", cfg.App.Port)
	}
}

func TestNormalizeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, v := NormalizeAndValidate(validConfig())
		if !v.OK() {
			t.Fatalf("errors = %v", v.Errors)
		}
	})

	t.Run("no listing source", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.Query = "  "
		_, v := NormalizeAndValidate(cfg)
		if v.OK() {
			t.Fatal("expected error for missing source")
		}
	})

	t.Run("alerts count as a source", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.Query = ""
		cfg.Alerts.Enabled = true
		cfg.Alerts.IMAPHost = "imap.example.com"
		cfg.Alerts.IMAPPort = 993
		cfg.Alerts.Username = "me@example.com"
		_, v := NormalizeAndValidate(cfg)
		if !v.OK() {
			t.Fatalf("errors = %v", v.Errors)
		}
	})

	t.Run("unknown prompt placeholder", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scoring.PromptTemplate = "Rate {job_title} for {salary_expectation}"
		_, v := NormalizeAndValidate(cfg)
		found := false
		for _, e := range v.Errors {
			if strings.Contains(e, "{salary_expectation}") {
				found = true
			}
		}
		if !found {
			t.Fatalf("errors = %v", v.Errors)
		}
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scoring.SendThreshold = 101
		if _, v := NormalizeAndValidate(cfg); v.OK() {
			t.Fatal("expected threshold error")
		}
	})

	t.Run("smtp host requires sender email", func(t *testing.T) {
		cfg := validConfig()
		cfg.Dispatch.SMTPHost = "smtp.example.com"
		cfg.Dispatch.SMTPPort = 587
		if _, v := NormalizeAndValidate(cfg); v.OK() {
			t.Fatal("expected sender_email error")
		}
	})

	t.Run("excluded companies normalized", func(t *testing.T) {
		cfg := validConfig()
		cfg.Filters.ExcludedCompanies = []string{" Initech ", "initech", "", "Hooli"}
		out, v := NormalizeAndValidate(cfg)
		if !v.OK() {
			t.Fatalf("errors = %v", v.Errors)
		}
		if len(out.Filters.ExcludedCompanies) != 2 {
			t.Fatalf("normalized = %v", out.Filters.ExcludedCompanies)
		}
	})
}

func TestSaveAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := validConfig()
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Search.Query != cfg.Search.Query {
		t.Errorf("roundtrip query = %q", loaded.Search.Query)
	}

	// Second save keeps a .bak of the previous file.
	cfg.Search.Query = "site reliability"
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("no .bak written: %v", err)
	}

	// An invalid config never reaches disk.
	bad := validConfig()
	bad.Filters.MaxDaysPosted = 0
	if err := SaveAtomic(path, bad); err == nil {
		t.Fatal("expected validation failure")
	}
	loaded, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Search.Query != "site reliability" {
		t.Errorf("file changed by rejected save: %q", loaded.Search.Query)
	}
}
