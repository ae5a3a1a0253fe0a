package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Sidth3dr3amer/NityaBSE/internal/enrich"
	"github.com/Sidth3dr3amer/NityaBSE/internal/retry"
	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

const feedPage = `<html><body><div class="cannn"><ul class="ullist">
<li><a href="/corporates/AnnDet_new.aspx?newsid=1001">HDFC Bank Ltd</a></li>
<li><a href="/corporates/AnnDet_new.aspx?newsid=1002">ICICI Bank Ltd</a></li>
</ul></div></body></html>`

func detailPage(company, code, title, description string) string {
	return `<html><body><table>
<tr><td id="ContentPlaceHolder1_tdCompNm"><a>` + company + `</a><span class="spn02">` + code + `</span></td></tr>
<tr><td id="ContentPlaceHolder1_tdDet"><table>
<tr><td class="TTHeadergrey">` + title + `</td></tr>
<tr><td class="TTRow_leftnotices">` + description + `</td></tr>
<tr><td>Exchange Received Time 05/11/2025 14:30:00 Exchange Disseminated Time 05/11/2025 14:31:00</td></tr>
</table></td></tr>
</table></body></html>`
}

// fakePage serves canned HTML keyed by URL substring. failFirst fails the
// first n navigations of any kind; failDetailFirst fails only the first n
// detail-page navigations.
type fakePage struct {
	pages           map[string]string
	failFirst       *int
	failDetailFirst *int
	lastURL         string
}

func (f *fakePage) Navigate(ctx context.Context, pageURL, waitSelector string) error {
	if f.failFirst != nil && *f.failFirst > 0 {
		*f.failFirst--
		return eris.New("navigation timed out")
	}
	if f.failDetailFirst != nil && *f.failDetailFirst > 0 && strings.Contains(pageURL, "newsid") {
		*f.failDetailFirst--
		return eris.New("navigation timed out")
	}
	f.lastURL = pageURL
	return nil
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	for key, html := range f.pages {
		if strings.Contains(f.lastURL, key) {
			return html, nil
		}
	}
	return "", eris.Errorf("no fixture for %s", f.lastURL)
}

func (f *fakePage) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakePage) Close() {}

type fakeStore struct {
	existing map[string]bool
	inserted []types.AnnouncementRecord
	conflict bool
	failFor  string
}

func (f *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	return f.existing[id], nil
}

func (f *fakeStore) Insert(ctx context.Context, rec types.AnnouncementRecord) (bool, error) {
	if f.failFor == rec.ID {
		return false, eris.New("database unavailable")
	}
	if f.conflict {
		return false, nil
	}
	f.inserted = append(f.inserted, rec)
	return true, nil
}

type fakeEnricher struct {
	artifacts []types.Artifact
}

func (f fakeEnricher) Collect(ctx context.Context, page enrich.PageCapturer, newsid, pdfURL string) []types.Artifact {
	return f.artifacts
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, title, subject, description string) string {
	return "summary of " + title
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, Delay: time.Millisecond}
}

func newTestPipeline(page *fakePage, st *fakeStore, enr Enricher) *Pipeline {
	return New(Deps{
		NewPage:     func() Page { return page },
		Store:       st,
		Enrich:      enr,
		Summarize:   fakeSummarizer{},
		Logger:      zap.NewNop(),
		ListRetry:   fastRetry(3),
		DetailRetry: fastRetry(2),
	})
}

func TestRunIngestsAllItems(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Outcome of Board Meeting", "The board approved the results."),
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Declaration of Dividend", "Interim dividend of Rs 5 declared."),
	}}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 2}, counters)
	require.Len(t, st.inserted, 2)

	rec := st.inserted[0]
	assert.Equal(t, "1001", rec.ID)
	assert.Equal(t, "HDFC Bank Ltd", rec.CompanyName)
	assert.Equal(t, "500180", rec.CompanyCode)
	assert.Equal(t, "Outcome of Board Meeting", rec.Title)
	assert.Equal(t, rec.Title, rec.Subject)
	assert.Equal(t, "board_meeting", rec.Category)
	assert.Equal(t, "summary of Outcome of Board Meeting", rec.Summary)
	assert.Equal(t, time.Date(2025, 11, 5, 14, 30, 0, 0, time.UTC), rec.FiledAt)
	assert.Equal(t, "BSE", rec.Exchange)
	assert.Equal(t, "BANKEX", rec.IndexName)
	assert.Equal(t, `{"images":[]}`, rec.ScreenshotURL)
	assert.Contains(t, rec.SourcePage, "newsid=1001")

	assert.Equal(t, "corp_action", st.inserted[1].Category)
}

func TestRunFeedFetchExhaustionIsFatal(t *testing.T) {
	fails := 100
	page := &fakePage{pages: map[string]string{}, failFirst: &fails}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrFeedUnavailable))
	assert.Equal(t, Counters{}, counters)
	assert.Empty(t, st.inserted)
}

func TestRunFeedFetchRecoversOnRetry(t *testing.T) {
	fails := 2
	page := &fakePage{
		pages: map[string]string{
			"sensex":      feedPage,
			"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
			"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
		},
		failFirst: &fails,
	}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, counters.Success)
}

func TestRunSkipsExistingItems(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
	}}
	st := &fakeStore{existing: map[string]bool{"1001": true}}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 1, Skipped: 1}, counters)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "1002", st.inserted[0].ID)
}

func TestRunItemFailureDoesNotAbortRun(t *testing.T) {
	// No fixture for 1001, so its extraction fails; 1002 still lands.
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
	}}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 1, Failed: 1}, counters)
}

func TestRunInsertErrorCountsAsFailure(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
	}}
	st := &fakeStore{failFor: "1001"}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 1, Failed: 1}, counters)
}

func TestRunDuplicateInsertCountsAsSuccess(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
	}}
	st := &fakeStore{conflict: true}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 2}, counters)
}

func TestRunWarmupAllowanceOnFirstNavigation(t *testing.T) {
	// DetailRetry allows 2 attempts; the first navigated item gets 3. Two
	// detail navigation failures must be absorbed by the warm-up item.
	fails := 2
	page := &fakePage{
		pages: map[string]string{
			"sensex":      feedPage,
			"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
			"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
		},
		failDetailFirst: &fails,
	}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 2}, counters)
}

func TestRunWarmupAllowanceSurvivesSkippedHead(t *testing.T) {
	// The head of the feed is already persisted, so the allowance must go to
	// the first item that actually navigates, not the first listed id.
	fails := 2
	page := &fakePage{
		pages: map[string]string{
			"sensex":      feedPage,
			"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
		},
		failDetailFirst: &fails,
	}
	st := &fakeStore{existing: map[string]bool{"1001": true}}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 1, Skipped: 1}, counters)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "1002", st.inserted[0].ID)
}

func TestRunSecondItemGetsNoWarmupAllowance(t *testing.T) {
	// Three detail failures exhaust even the warm-up budget of 3, so the
	// first item fails; the second item runs on the base budget alone and
	// still succeeds.
	fails := 3
	page := &fakePage{
		pages: map[string]string{
			"sensex":      feedPage,
			"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
			"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
		},
		failDetailFirst: &fails,
	}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{})
	counters, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counters{Success: 1, Failed: 1}, counters)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "1002", st.inserted[0].ID)
}

func TestRunStoresArtifactEnvelope(t *testing.T) {
	artifacts := []types.Artifact{
		{Filename: "announcement_details.png", URL: "https://cdn.example.com/a.png", Type: types.ArtifactAnnouncement},
		{Filename: "pdf_page_1.png", URL: "https://cdn.example.com/p1.png", Type: types.ArtifactPDFPage, PageNumber: 1},
	}
	page := &fakePage{pages: map[string]string{
		"sensex":      feedPage,
		"newsid=1001": detailPage("HDFC Bank Ltd", "500180", "Update", "General update."),
		"newsid=1002": detailPage("ICICI Bank Ltd", "532174", "Update", "General update."),
	}}
	st := &fakeStore{}

	p := newTestPipeline(page, st, fakeEnricher{artifacts: artifacts})
	_, err := p.Run(context.Background())

	require.NoError(t, err)
	require.NotEmpty(t, st.inserted)

	decoded, err := types.DecodeArtifacts(st.inserted[0].ScreenshotURL)
	require.NoError(t, err)
	assert.Equal(t, artifacts, decoded)
}
