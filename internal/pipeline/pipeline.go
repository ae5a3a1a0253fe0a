/*
Package pipeline orchestrates one ingestion run: fetch the feed list, then
walk each announcement through extraction, enrichment, classification,
summarization, and persistence.

Failure policy: only an exhausted feed-list fetch aborts the run. Every
per-item failure is logged, counted, and contained; the run always reaches
the end of the list.
*/
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Sidth3dr3amer/NityaBSE/internal/bse"
	"github.com/Sidth3dr3amer/NityaBSE/internal/classify"
	"github.com/Sidth3dr3amer/NityaBSE/internal/enrich"
	"github.com/Sidth3dr3amer/NityaBSE/internal/retry"
	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

// ErrFeedUnavailable marks the one fatal condition: the feed list could not
// be fetched within the retry budget.
var ErrFeedUnavailable = eris.New("feed list unavailable")

// Page is one browser page session used for a single item or the feed list.
type Page interface {
	Navigate(ctx context.Context, pageURL, waitSelector string) error
	HTML(ctx context.Context) (string, error)
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	Close()
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, rec types.AnnouncementRecord) (bool, error)
}

// Enricher collects best-effort visual artifacts for an item.
type Enricher interface {
	Collect(ctx context.Context, page enrich.PageCapturer, newsid, pdfURL string) []types.Artifact
}

// Summarizer produces the stored summary text.
type Summarizer interface {
	Summarize(ctx context.Context, title, subject, description string) string
}

// Deps wires the pipeline's collaborators. NewPage is a factory because each
// item gets its own short-lived page.
type Deps struct {
	NewPage   func() Page
	Store     Store
	Enrich    Enricher
	Summarize Summarizer
	Logger    *zap.Logger

	FeedURL     string
	ListRetry   retry.Config
	DetailRetry retry.Config
}

// Counters summarizes one run.
type Counters struct {
	Success int
	Skipped int
	Failed  int
}

// Pipeline runs announcement ingestion.
type Pipeline struct {
	deps Deps
}

// New builds a pipeline, filling in default retry policies and the default
// feed URL.
func New(deps Deps) *Pipeline {
	if deps.FeedURL == "" {
		deps.FeedURL = bse.FeedURL
	}
	if deps.ListRetry.MaxAttempts == 0 {
		deps.ListRetry = retry.Config{
			MaxAttempts: 3,
			Delay:       5 * time.Second,
			BaseTimeout: 30 * time.Second,
		}
	}
	if deps.DetailRetry.MaxAttempts == 0 {
		deps.DetailRetry = retry.Config{
			MaxAttempts: 2,
			Delay:       3 * time.Second,
			BaseTimeout: 45 * time.Second,
		}
	}
	return &Pipeline{deps: deps}
}

// Run executes one full ingestion pass.
func (p *Pipeline) Run(ctx context.Context) (Counters, error) {
	log := p.deps.Logger

	ids, err := p.fetchFeedList(ctx)
	if err != nil {
		return Counters{}, eris.Wrapf(ErrFeedUnavailable, "pipeline: %v", err)
	}

	log.Info("feed list fetched", zap.Int("items", len(ids)))

	var counters Counters
	// The warm-up allowance belongs to the first item that actually opens a
	// page, not the first listed id; skipped duplicates must not consume it.
	firstNavigation := true
	for _, id := range ids {
		itemLog := log.With(zap.String("newsid", id))

		exists, err := p.deps.Store.Exists(ctx, id)
		if err != nil {
			itemLog.Error("existence check failed", zap.Error(err))
			counters.Failed++
			continue
		}
		if exists {
			itemLog.Debug("already ingested, skipping")
			counters.Skipped++
			continue
		}

		err = p.processItem(ctx, itemLog, id, firstNavigation)
		firstNavigation = false
		if err != nil {
			itemLog.Error("item failed", zap.Error(err))
			counters.Failed++
			continue
		}
		counters.Success++
	}

	log.Info("run complete",
		zap.Int("success", counters.Success),
		zap.Int("skipped", counters.Skipped),
		zap.Int("failed", counters.Failed),
	)

	return counters, nil
}

// fetchFeedList loads the feed page and extracts the newsid list, retrying
// the whole navigate-and-parse unit.
func (p *Pipeline) fetchFeedList(ctx context.Context) ([]string, error) {
	cfg := p.deps.ListRetry
	cfg.OnRetry = func(attempt int, err error) {
		p.deps.Logger.Warn("feed list fetch failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
	}

	return retry.DoVal(ctx, cfg, func(ctx context.Context) ([]string, error) {
		page := p.deps.NewPage()
		defer page.Close()

		if err := page.Navigate(ctx, p.deps.FeedURL, bse.FeedListSelector); err != nil {
			return nil, err
		}
		htmlStr, err := page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		return bse.ParseFeedList(htmlStr)
	})
}

// processItem ingests one announcement. The first item of a run gets one
// extra navigation attempt because it tends to hit a cold server-side cache.
func (p *Pipeline) processItem(ctx context.Context, log *zap.Logger, id string, first bool) error {
	page := p.deps.NewPage()
	defer page.Close()

	detail, err := p.extractDetail(ctx, page, id, first)
	if err != nil {
		return err
	}

	// The detail page carries no separate subject line; the title serves as
	// the subject throughout.
	subject := detail.Title

	artifacts := p.deps.Enrich.Collect(ctx, page, id, detail.PDFURL)
	category := classify.Classify(detail.Title, detail.Description)
	summary := p.deps.Summarize.Summarize(ctx, detail.Title, subject, detail.Description)

	rec := buildRecord(id, detail, subject, category, summary, artifacts)

	inserted, err := p.deps.Store.Insert(ctx, rec)
	if err != nil {
		return err
	}
	if !inserted {
		log.Info("duplicate insert, already persisted")
		return nil
	}

	log.Info("announcement ingested",
		zap.String("company", rec.CompanyName),
		zap.String("category", rec.Category),
		zap.Int("artifacts", len(artifacts)),
	)

	return nil
}

// extractDetail navigates to the detail page and parses it. Navigation and
// HTML capture retry together; a parse failure on captured HTML is
// structural, so it is not retried.
func (p *Pipeline) extractDetail(ctx context.Context, page Page, id string, first bool) (types.RawDetail, error) {
	cfg := p.deps.DetailRetry
	if first {
		cfg.MaxAttempts++
	}
	cfg.OnRetry = func(attempt int, err error) {
		p.deps.Logger.Warn("detail fetch failed, retrying",
			zap.String("newsid", id), zap.Int("attempt", attempt), zap.Error(err))
	}

	htmlStr, err := retry.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		if err := page.Navigate(ctx, bse.DetailURL(id), bse.DetailContainerSelector); err != nil {
			return "", err
		}
		return page.HTML(ctx)
	})
	if err != nil {
		return types.RawDetail{}, err
	}

	return bse.ParseDetail(htmlStr, time.Now())
}

func buildRecord(id string, detail types.RawDetail, subject string, category classify.Category, summary string, artifacts []types.Artifact) types.AnnouncementRecord {
	return types.AnnouncementRecord{
		ID:            id,
		CompanyCode:   detail.SecurityCode,
		CompanyName:   detail.CompanyName,
		Title:         detail.Title,
		Subject:       subject,
		Summary:       summary,
		Category:      string(category),
		FiledAt:       detail.FiledAt,
		PDFURL:        detail.PDFURL,
		ScreenshotURL: types.EncodeArtifacts(artifacts),
		SourcePage:    bse.DetailURL(id),
		Exchange:      bse.Exchange,
		IndexName:     bse.IndexName,
	}
}
