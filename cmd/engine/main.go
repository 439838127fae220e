package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"applypilot-engine/internal/config"
	"applypilot-engine/internal/contact"
	"applypilot-engine/internal/dispatch"
	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/events"
	"applypilot-engine/internal/httpapi"
	"applypilot-engine/internal/ledger"
	"applypilot-engine/internal/oracle"
	"applypilot-engine/internal/pipeline"
	"applypilot-engine/internal/resume"
	"applypilot-engine/internal/scheduler"
	"applypilot-engine/internal/secrets"
	"applypilot-engine/internal/source"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("engine exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	dataDir := os.Getenv("APPLYPILOT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// One engine per data dir: two processes sharing the sqlite file and
	// the SMTP identity would break at-most-once dispatch.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return errors.New("another engine instance is already running in " + dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
	if err != nil {
		return fmt.Errorf("config bootstrap: %w", err)
	}

	var cfgVal atomic.Value
	loadCfg := func() (config.Config, error) { return config.Load(userCfgPath) }
	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("config load (%s): %w", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	db, err := ledger.Open(filepath.Join(dataDir, "applypilot.db"))
	if err != nil {
		return fmt.Errorf("ledger open: %w", err)
	}
	defer db.Close()
	if err := ledger.Migrate(db); err != nil {
		return fmt.Errorf("ledger migrate: %w", err)
	}
	led := ledger.New(db)

	hub := events.NewHub()

	pipe, err := buildPipeline(cfg, led, hub, log)
	if err != nil {
		return err
	}

	runTimeout := time.Duration(cfg.Pipeline.RunTimeoutMinutes) * time.Minute
	mgr := pipeline.NewManager(pipe, runTimeout, log)

	mux := httpapi.NewMux(httpapi.Deps{
		Ledger:      led,
		Manager:     mgr,
		Hub:         hub,
		CfgVal:      &cfgVal,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
		BuildPolicy: buildPolicy,
	})
	handler := httpapi.Chain(mux,
		httpapi.RequestID,
		httpapi.Recover(log),
		httpapi.AccessLog(log),
	)

	port := cfg.App.Port
	if port == 0 {
		port = 38471
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n := cfg.Pipeline.AutoRunMinutes; n > 0 {
		go scheduler.Every(rootCtx, time.Duration(n)*time.Minute, "auto-run", log, func(context.Context) error {
			cur := cfgVal.Load().(config.Config)
			policy, err := buildPolicy("default", cur)
			if err != nil {
				return err
			}
			_, err = mgr.StartRun(policy)
			if errors.Is(err, pipeline.ErrRunInProgress) {
				return nil
			}
			return err
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("engine listening", "addr", "http://"+addr, "data_dir", dataDir)

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	log.Info("shutting down")
	mgr.Shutdown(10 * time.Second)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// buildPipeline assembles sources and outbound clients from the config
// plus keychain secrets.
func buildPipeline(cfg config.Config, led *ledger.Ledger, hub *events.Hub, log *slog.Logger) (*pipeline.Pipeline, error) {
	srcs := []source.Source{
		source.NewLinkedIn(source.LinkedInConfig{
			RequestsPerSec: cfg.Search.RequestsPerSec,
		}, log),
	}
	if len(cfg.Boards.Greenhouse) > 0 {
		boards := make([]source.Board, 0, len(cfg.Boards.Greenhouse))
		for _, b := range cfg.Boards.Greenhouse {
			boards = append(boards, source.Board{Slug: b.Slug, Name: b.Name})
		}
		srcs = append(srcs, source.NewGreenhouse(boards, log))
	}
	if cfg.Alerts.Enabled {
		pw, err := secrets.Get(secrets.NameIMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("alerts enabled but no imap password in keychain: %w", err)
		}
		srcs = append(srcs, source.NewAlerts(source.AlertsConfig{
			IMAPHost: cfg.Alerts.IMAPHost,
			IMAPPort: cfg.Alerts.IMAPPort,
			Username: cfg.Alerts.Username,
			Password: pw,
			Mailbox:  cfg.Alerts.Mailbox,
			MaxMsgs:  cfg.Alerts.MaxMsgs,
		}, log))
	}

	scorer := oracle.NewGeminiClient(oracle.GeminiConfig{
		BaseURL: cfg.Scoring.BaseURL,
		Model:   cfg.Scoring.Model,
		APIKey:  secrets.GetOptional(secrets.NameOracleKey),
		Timeout: time.Duration(cfg.Scoring.TimeoutSeconds) * time.Second,
	}, log)

	resolver := contact.NewHunterClient(contact.HunterConfig{
		BaseURL: cfg.Contact.BaseURL,
		APIKey:  secrets.GetOptional(secrets.NameResolverKey),
		Timeout: time.Duration(cfg.Contact.TimeoutSeconds) * time.Second,
	}, log)

	// A fresh install has no SMTP config yet; the engine still starts so
	// the rest can be set up through the API.
	var sender dispatch.Sender = dispatch.Disabled{}
	if cfg.Dispatch.SMTPHost != "" {
		s, err := dispatch.NewSMTPSender(dispatch.SMTPConfig{
			Host:       cfg.Dispatch.SMTPHost,
			Port:       cfg.Dispatch.SMTPPort,
			Password:   secrets.GetOptional(secrets.NameSMTPPassword),
			From:       cfg.Dispatch.SenderEmail,
			SenderName: cfg.Dispatch.SenderName,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		sender = s
	}

	var attachment *dispatch.Attachment
	if cfg.Dispatch.AttachResume && cfg.Resume.Path != "" {
		prof, err := resume.Load(cfg.Resume.Path)
		if err != nil {
			log.Warn("resume not loaded; sending without attachment", "path", cfg.Resume.Path, "error", err)
		} else {
			attachment = &dispatch.Attachment{
				Filename:    prof.Filename,
				ContentType: prof.ContentType(),
				Data:        prof.Raw,
			}
		}
	}

	return pipeline.New(pipeline.Config{
		Workers:           cfg.Pipeline.Workers,
		QueueSize:         cfg.Pipeline.QueueSize,
		RetryAttempts:     cfg.Pipeline.RetryAttempts,
		ResolverAttempts:  cfg.Contact.MaxAttempts,
		StaleSendingAfter: time.Duration(cfg.Pipeline.StaleSendingMinutes) * time.Minute,
		OracleRPS:         cfg.Pipeline.OracleRPS,
		ResolverRPS:       cfg.Pipeline.ResolverRPS,
		DispatchRPS:       cfg.Pipeline.DispatchRPS,
	}, pipeline.Deps{
		Ledger:        led,
		Sources:       srcs,
		Scorer:        scorer,
		Resolver:      resolver,
		Sender:        sender,
		Hub:           hub,
		Log:           log,
		Attachment:    attachment,
		SessionCookie: secrets.GetOptional(secrets.NameSessionCookie),
	}), nil
}

// buildPolicy derives the per-run policy from the current config. The
// resume text feeds the scoring prompt when the file is plain text.
func buildPolicy(tenantID string, cfg config.Config) (domain.Policy, error) {
	if cfg.Search.Query == "" && !cfg.Alerts.Enabled {
		return domain.Policy{}, errors.New("no listing source configured: set search.query or enable alerts")
	}

	resumeText := ""
	if cfg.Resume.Path != "" {
		if prof, err := resume.Load(cfg.Resume.Path); err == nil {
			resumeText = prof.Text
		}
	}

	return domain.Policy{
		TenantID:          tenantID,
		SearchQuery:       cfg.Search.Query,
		MaxPages:          cfg.Search.MaxPages,
		MaxDaysPosted:     cfg.Filters.MaxDaysPosted,
		MaxApplicants:     cfg.Filters.MaxApplicants,
		MinDescriptionLen: cfg.Filters.MinDescriptionLen,
		ExcludedCompanies: cfg.Filters.ExcludedCompanies,
		SendThreshold:     cfg.Scoring.SendThreshold,
		PromptTemplate:    cfg.Scoring.PromptTemplate,
		ResumeText:        resumeText,
		SenderName:        cfg.Dispatch.SenderName,
		SenderEmail:       cfg.Dispatch.SenderEmail,
		EmailSubject:      cfg.Dispatch.Subject,
		AttachResume:      cfg.Dispatch.AttachResume,
	}, nil
}
