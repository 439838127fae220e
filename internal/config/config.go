// Package config holds the user-editable yaml configuration: loading,
// first-run bootstrap, validation, and atomic save.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Search struct {
		Query          string  `yaml:"query"`
		MaxPages       int     `yaml:"max_pages"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
	} `yaml:"search"`

	Boards struct {
		Greenhouse []struct {
			Slug string `yaml:"slug"`
			Name string `yaml:"name"`
		} `yaml:"greenhouse"`
	} `yaml:"boards"`

	Alerts struct {
		Enabled  bool   `yaml:"enabled"`
		IMAPHost string `yaml:"imap_host"`
		IMAPPort int    `yaml:"imap_port"`
		Username string `yaml:"username"`
		Mailbox  string `yaml:"mailbox"`
		MaxMsgs  int    `yaml:"max_msgs"`
	} `yaml:"alerts"`

	Filters struct {
		MaxDaysPosted     int      `yaml:"max_days_posted"`
		MaxApplicants     int      `yaml:"max_applicants"` // 0 = unlimited
		MinDescriptionLen int      `yaml:"min_description_len"`
		ExcludedCompanies []string `yaml:"excluded_companies"`
	} `yaml:"filters"`

	Scoring struct {
		SendThreshold  float64 `yaml:"send_threshold"`
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url"`
		PromptTemplate string  `yaml:"prompt_template"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"scoring"`

	Contact struct {
		BaseURL        string `yaml:"base_url"`
		MaxAttempts    int    `yaml:"max_attempts"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"contact"`

	Dispatch struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SenderName   string `yaml:"sender_name"`
		SenderEmail  string `yaml:"sender_email"`
		Subject      string `yaml:"subject"`
		AttachResume bool   `yaml:"attach_resume"`
	} `yaml:"dispatch"`

	Pipeline struct {
		Workers             int     `yaml:"workers"`
		QueueSize           int     `yaml:"queue_size"`
		OracleRPS           float64 `yaml:"oracle_rps"`
		ResolverRPS         float64 `yaml:"resolver_rps"`
		DispatchRPS         float64 `yaml:"dispatch_rps"`
		RetryAttempts       int     `yaml:"retry_attempts"`
		RunTimeoutMinutes   int     `yaml:"run_timeout_minutes"`
		StaleSendingMinutes int     `yaml:"stale_sending_minutes"`
		AutoRunMinutes      int     `yaml:"auto_run_minutes"` // 0 disables unattended runs
	} `yaml:"pipeline"`

	Resume struct {
		Path string `yaml:"path"`
	} `yaml:"resume"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
