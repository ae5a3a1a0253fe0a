/*
Package notify emails announcements that have not yet been sent to the
configured recipient. Each record is sent as its own message and only marked
sent after the SMTP handoff succeeds, so a delivery failure retries on the
next run.
*/
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"

	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

const (
	// maxPerRun caps how many emails one run may send.
	maxPerRun = 50

	dialTimeout = 10 * time.Second
)

// Config carries SMTP settings and the digest recipient.
type Config struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// Store is the persistence surface the notifier needs.
type Store interface {
	FetchUnsent(ctx context.Context, limit int) ([]types.AnnouncementRecord, error)
	MarkSent(ctx context.Context, id string) error
}

// Notifier sends announcement emails.
type Notifier struct {
	cfg   Config
	store Store
	log   *zap.Logger
	send  func(m *gomail.Message) error
}

// New builds a notifier wired to a real SMTP dialer.
func New(cfg Config, store Store, logger *zap.Logger) *Notifier {
	n := &Notifier{cfg: cfg, store: store, log: logger}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		d.Timeout = dialTimeout
		return d.DialAndSend(m)
	}
	return n
}

// ProcessUnsent emails every pending record. Send failures are logged and
// leave the record pending; they never fail the run.
func (n *Notifier) ProcessUnsent(ctx context.Context) error {
	if !n.cfg.Enabled {
		return nil
	}

	records, err := n.store.FetchUnsent(ctx, maxPerRun)
	if err != nil {
		return eris.Wrap(err, "notify: fetch unsent")
	}
	if len(records) == 0 {
		return nil
	}

	n.log.Info("sending announcement emails", zap.Int("pending", len(records)))

	for _, rec := range records {
		if err := n.sendOne(rec); err != nil {
			n.log.Warn("email send failed", zap.String("newsid", rec.ID), zap.Error(err))
			continue
		}
		if err := n.store.MarkSent(ctx, rec.ID); err != nil {
			n.log.Warn("cannot mark email sent", zap.String("newsid", rec.ID), zap.Error(err))
		}
	}

	return nil
}

func (n *Notifier) sendOne(rec types.AnnouncementRecord) error {
	body, err := renderBody(rec)
	if err != nil {
		return eris.Wrapf(err, "notify: render body for %s", rec.ID)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.ToEmail)
	m.SetHeader("Subject", subjectLine(rec))
	m.SetBody("text/html", body)

	return n.send(m)
}

func subjectLine(rec types.AnnouncementRecord) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(rec.IndexName)
	b.WriteString("] ")
	b.WriteString(rec.CompanyName)
	b.WriteString(": ")
	b.WriteString(rec.Title)
	return b.String()
}
