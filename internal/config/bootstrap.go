package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// EnsureUserConfig makes sure a per-user config exists under dataDir,
// seeding it from defaultPath (or built-in defaults if that is missing).
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if werr := os.WriteFile(userPath, []byte(defaultYAML), 0o644); werr != nil {
				return "", werr
			}
			return userPath, nil
		}
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(userPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return userPath, nil
}

const defaultYAML = `app:
  port: 38471
  data_dir: "."

search:
  query: ""
  max_pages: 3
  requests_per_sec: 0.5

boards:
  greenhouse: []

alerts:
  enabled: false
  imap_host: "imap.gmail.com"
  imap_port: 993
  mailbox: "INBOX"
  max_msgs: 50

filters:
  max_days_posted: 14
  max_applicants: 500
  min_description_len: 50
  excluded_companies: []

scoring:
  send_threshold: 70
  model: "gemini-2.5-flash"
  timeout_seconds: 45

contact:
  max_attempts: 3
  timeout_seconds: 20

dispatch:
  smtp_host: ""
  smtp_port: 587
  attach_resume: true

pipeline:
  workers: 4
  queue_size: 64
  oracle_rps: 1
  resolver_rps: 1
  dispatch_rps: 0.5
  retry_attempts: 3
  run_timeout_minutes: 30
  stale_sending_minutes: 15
  auto_run_minutes: 0

resume:
  path: "resume.txt"
`
