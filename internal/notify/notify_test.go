package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"

	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

type fakeStore struct {
	unsent   []types.AnnouncementRecord
	fetchErr error
	sent     []string
}

func (f *fakeStore) FetchUnsent(ctx context.Context, limit int) ([]types.AnnouncementRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.unsent, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func testRecord(id string) types.AnnouncementRecord {
	return types.AnnouncementRecord{
		ID:            id,
		CompanyCode:   "500180",
		CompanyName:   "HDFC Bank Ltd",
		Title:         "Outcome of Board Meeting",
		Subject:       "Outcome of Board Meeting",
		Summary:       "The board approved the quarterly results.",
		Category:      "board_meeting",
		FiledAt:       time.Date(2025, 11, 5, 14, 30, 0, 0, time.UTC),
		PDFURL:        "https://www.bseindia.com/abc.pdf",
		ScreenshotURL: `{"images":[{"filename":"announcement_details.png","url":"https://cdn.example.com/a.png","type":"announcement"}]}`,
		SourcePage:    "https://www.bseindia.com/corporates/AnnDet_new.aspx?newsid=" + id,
		Exchange:      "BSE",
		IndexName:     "BANKEX",
	}
}

func newTestNotifier(st Store, enabled bool) (*Notifier, *[]*gomail.Message) {
	n := New(Config{
		FromEmail: "from@example.com",
		ToEmail:   "to@example.com",
		Enabled:   enabled,
	}, st, zap.NewNop())

	var sent []*gomail.Message
	n.send = func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}
	return n, &sent
}

func TestProcessUnsentSendsAndMarks(t *testing.T) {
	st := &fakeStore{unsent: []types.AnnouncementRecord{testRecord("1001"), testRecord("1002")}}
	n, sent := newTestNotifier(st, true)

	require.NoError(t, n.ProcessUnsent(context.Background()))

	assert.Len(t, *sent, 2)
	assert.Equal(t, []string{"1001", "1002"}, st.sent)

	headers := (*sent)[0].GetHeader("Subject")
	require.Len(t, headers, 1)
	assert.Equal(t, "[BANKEX] HDFC Bank Ltd: Outcome of Board Meeting", headers[0])
}

func TestProcessUnsentDisabled(t *testing.T) {
	st := &fakeStore{unsent: []types.AnnouncementRecord{testRecord("1001")}}
	n, sent := newTestNotifier(st, false)

	require.NoError(t, n.ProcessUnsent(context.Background()))
	assert.Empty(t, *sent)
	assert.Empty(t, st.sent)
}

func TestProcessUnsentSendFailureLeavesPending(t *testing.T) {
	st := &fakeStore{unsent: []types.AnnouncementRecord{testRecord("1001"), testRecord("1002")}}
	n, _ := newTestNotifier(st, true)

	calls := 0
	n.send = func(m *gomail.Message) error {
		calls++
		if calls == 1 {
			return eris.New("smtp refused")
		}
		return nil
	}

	require.NoError(t, n.ProcessUnsent(context.Background()))
	assert.Equal(t, []string{"1002"}, st.sent)
}

func TestProcessUnsentFetchErrorPropagates(t *testing.T) {
	st := &fakeStore{fetchErr: eris.New("database unavailable")}
	n, _ := newTestNotifier(st, true)

	assert.Error(t, n.ProcessUnsent(context.Background()))
}

func TestRenderBody(t *testing.T) {
	body, err := renderBody(testRecord("1001"))

	require.NoError(t, err)
	assert.Contains(t, body, "HDFC Bank Ltd")
	assert.Contains(t, body, "500180")
	assert.Contains(t, body, "board_meeting")
	assert.Contains(t, body, "The board approved the quarterly results.")
	assert.Contains(t, body, `src="https://cdn.example.com/a.png"`)
	assert.Contains(t, body, `href="https://www.bseindia.com/abc.pdf"`)
}

func TestRenderBodyHidesSummaryEqualToSubject(t *testing.T) {
	rec := testRecord("1001")
	rec.Summary = rec.Subject

	body, err := renderBody(rec)

	require.NoError(t, err)
	// The subject heading still shows; the duplicate paragraph does not.
	assert.Equal(t, 1, strings.Count(body, rec.Subject))
}

func TestRenderBodyCorruptEnvelope(t *testing.T) {
	rec := testRecord("1001")
	rec.ScreenshotURL = "not json"

	body, err := renderBody(rec)

	require.NoError(t, err)
	assert.NotContains(t, body, "<img")
}
