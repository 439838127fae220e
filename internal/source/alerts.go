package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"applypilot-engine/internal/domain"
)

// Alerts reads unseen job-alert emails from an IMAP mailbox and parses job
// cards out of their HTML bodies. A second, cheaper listing source: alert
// emails arrive pre-matched to the saved search.
type Alerts struct {
	host    string
	port    int
	user    string
	pass    string
	mailbox string
	maxMsgs int
	log     *slog.Logger
}

type AlertsConfig struct {
	IMAPHost string
	IMAPPort int
	Username string
	Password string
	Mailbox  string
	MaxMsgs  int
}

func NewAlerts(cfg AlertsConfig, logger *slog.Logger) *Alerts {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.MaxMsgs <= 0 {
		cfg.MaxMsgs = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerts{
		host:    cfg.IMAPHost,
		port:    cfg.IMAPPort,
		user:    cfg.Username,
		pass:    cfg.Password,
		mailbox: cfg.Mailbox,
		maxMsgs: cfg.MaxMsgs,
		log:     logger,
	}
}

func (s *Alerts) Name() string { return "alerts" }

// Open drains the mailbox eagerly: alert batches are small and the IMAP
// session should not outlive the producer's pacing decisions. The returned
// iterator walks the parsed listings.
func (s *Alerts) Open(ctx context.Context, _ FetchOptions) (Iterator, error) {
	listings, err := s.fetchAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return &sliceIter{listings: listings}, nil
}

type sliceIter struct {
	listings []domain.Listing
	i        int
}

func (it *sliceIter) Next(_ context.Context) (domain.Listing, error) {
	if it.i >= len(it.listings) {
		return domain.Listing{}, ErrDone
	}
	l := it.listings[it.i]
	it.i++
	return l, nil
}

func (s *Alerts) fetchAlerts(ctx context.Context) ([]domain.Listing, error) {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: s.host},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: imap dial: %v", domain.ErrSourceUnavailable, err)
	}
	defer func() { _ = c.Close() }()

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(s.user, s.pass).Wait(); err != nil {
		return nil, fmt.Errorf("%w: imap login: %v", domain.ErrSourceUnavailable, err)
	}
	defer func() { _ = c.Logout().Wait() }()

	if _, err := c.Select(s.mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		return nil, fmt.Errorf("%w: imap select %s: %v", domain.ErrSourceUnavailable, s.mailbox, err)
	}

	// Old alerts are stale jobs anyway; don't even consider them.
	cutoff := time.Now().AddDate(0, -3, 0)
	searchData, err := c.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   cutoff,
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: imap search: %v", domain.ErrSourceUnavailable, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// newest first
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > s.maxMsgs {
		uids = uids[:s.maxMsgs]
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true, // don't mark \Seen until parsed successfully
	}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})

	var listings []domain.Listing
	var parsedUIDs []imap.UID

	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return nil, fmt.Errorf("%w: imap fetch: %v", domain.ErrSourceUnavailable, err)
		}

		var from, subject string
		if buf.Envelope != nil {
			subject = buf.Envelope.Subject
			if len(buf.Envelope.From) > 0 {
				from = buf.Envelope.From[0].Addr()
			}
		}

		raw := buf.FindBodySection(bodyAll)
		if len(raw) == 0 {
			continue
		}

		htmlBody := extractHTMLPart(raw)
		if htmlBody == "" || !looksLikeJobAlert(from, subject, htmlBody) {
			continue
		}

		batch, perr := parseAlertHTML(htmlBody)
		if perr != nil {
			s.log.Warn("alerts: parse failed", "subject", subject, "error", perr)
			continue
		}
		listings = append(listings, batch...)
		parsedUIDs = append(parsedUIDs, buf.UID)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("%w: imap fetch close: %v", domain.ErrSourceUnavailable, err)
	}

	if len(parsedUIDs) > 0 {
		store := c.Store(imap.UIDSetNum(parsedUIDs...), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil)
		if err := store.Close(); err != nil {
			s.log.Warn("alerts: mark seen failed", "error", err)
		}
	}

	s.log.Info("alerts: mailbox drained", "messages", len(parsedUIDs), "listings", len(listings))
	return listings, nil
}
