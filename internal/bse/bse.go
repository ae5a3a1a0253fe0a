/*
Package bse extracts structured announcement data from BSE BANKEX feed and
detail pages.
*/
package bse

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

const (
	BaseURL = "https://www.bseindia.com"

	// FeedURL lists the BANKEX corporate announcements.
	FeedURL = BaseURL + "/sensex/code/53/"

	// Exchange and IndexName tag every persisted record.
	Exchange  = "BSE"
	IndexName = "BANKEX"

	// FeedListSelector addresses the anchor list on the feed page.
	FeedListSelector = "div.cannn ul.ullist li a"

	// DetailContainerSelector addresses the announcement detail region,
	// used both as the readiness marker and the screenshot target.
	DetailContainerSelector = "#ContentPlaceHolder1_tdDet"

	companySelector     = "#ContentPlaceHolder1_tdCompNm a"
	codeSelector        = "#ContentPlaceHolder1_tdCompNm .spn02"
	titleSelector       = "td.TTHeadergrey"
	descriptionSelector = "td.TTRow_leftnotices"
	pdfLinkSelector     = `a.tablebluelink[href$=".pdf"]`

	receivedTimeLabel     = "Exchange Received Time"
	disseminatedTimeLabel = "Exchange Disseminated"
)

// ErrMissingField marks a structural extraction failure: the page loaded but
// a required field is absent. Not retried; the item is dropped whole.
var ErrMissingField = eris.New("required field missing")

// DetailURL builds the announcement detail page URL for a newsid.
func DetailURL(newsid string) string {
	return fmt.Sprintf("%s/corporates/AnnDet_new.aspx?newsid=%s", BaseURL, newsid)
}

// ParseFeedList extracts the ordered, de-duplicated newsids from the feed
// page HTML.
func ParseFeedList(htmlStr string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, eris.Wrap(err, "bse: parse feed page")
	}

	var ids []string
	seen := map[string]struct{}{}

	doc.Find(FeedListSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		id := newsidFromHref(href)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})

	return ids, nil
}

func newsidFromHref(href string) string {
	if u, err := url.Parse(href); err == nil {
		if id := u.Query().Get("newsid"); id != "" {
			return id
		}
	}

	// Feed hrefs are occasionally malformed enough that url.Parse drops the
	// query; fall back to a raw split.
	_, after, found := strings.Cut(href, "newsid=")
	if !found {
		return ""
	}
	if amp := strings.IndexByte(after, '&'); amp >= 0 {
		after = after[:amp]
	}
	return after
}

// ParseDetail extracts a RawDetail from detail page HTML. An unparseable
// filed-at timestamp degrades to now rather than failing; any other missing
// required field returns ErrMissingField and the item yields no record.
func ParseDetail(htmlStr string, now time.Time) (types.RawDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return types.RawDetail{}, eris.Wrap(err, "bse: parse detail page")
	}

	detail := types.RawDetail{
		CompanyName:  strings.TrimSpace(doc.Find(companySelector).First().Text()),
		SecurityCode: strings.TrimSpace(doc.Find(codeSelector).First().Text()),
		Title:        strings.TrimSpace(doc.Find(titleSelector).First().Text()),
		Description:  strings.TrimSpace(doc.Find(descriptionSelector).First().Text()),
	}

	for field, value := range map[string]string{
		"company name":  detail.CompanyName,
		"security code": detail.SecurityCode,
		"title":         detail.Title,
		"description":   detail.Description,
	} {
		if value == "" {
			return types.RawDetail{}, eris.Wrapf(ErrMissingField, "bse: %s", field)
		}
	}

	if href, ok := doc.Find(pdfLinkSelector).First().Attr("href"); ok {
		detail.PDFURL = absoluteURL(strings.TrimSpace(href))
	}

	detail.FiledAt = extractFiledAt(doc, now)

	return detail, nil
}

func absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return BaseURL + href
}

// extractFiledAt reads the first date-time from the dual received/disseminated
// label pair. A value that cannot be parsed falls back to the ingestion time;
// that is degraded data, not an error.
func extractFiledAt(doc *goquery.Document, now time.Time) time.Time {
	text := doc.Text()

	_, after, found := strings.Cut(text, receivedTimeLabel)
	if !found {
		return now
	}
	value := after
	if before, _, cut := strings.Cut(after, disseminatedTimeLabel); cut {
		value = before
	}

	t, err := ParseFiledTime(strings.TrimSpace(value))
	if err != nil {
		return now
	}
	return t
}

// ParseFiledTime parses the exchange timestamp. The feed emits day/month/year
// with seconds, with either / or - separators and one or two spaces before
// the time; all variants normalize to the same instant.
func ParseFiledTime(s string) (time.Time, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "-", "/")

	for _, layout := range []string{
		"02/01/2006 15:04:05",
		"02/01/2006  15:04:05",
	} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, nil
		}
	}

	return time.Time{}, eris.Errorf("bse: unparseable exchange time %q", s)
}
