package types

import (
	"encoding/json"
	"time"
)

// Artifact kinds stored in the screenshot envelope.
const (
	ArtifactAnnouncement = "announcement"
	ArtifactPDFPage      = "pdf_page"
)

// RawDetail is the transient extraction result for one announcement detail
// page. It is never persisted directly; a record is only assembled once all
// required fields are present.
type RawDetail struct {
	CompanyName  string
	SecurityCode string
	Title        string
	Description  string
	PDFURL       string
	FiledAt      time.Time
}

// Artifact is one uploaded enrichment image. Only the remote URL is kept;
// raw bytes are never stored.
type Artifact struct {
	Filename   string `json:"filename"`
	URL        string `json:"url"`
	Type       string `json:"type"`
	PageNumber int    `json:"page_number,omitempty"`
}

// ArtifactEnvelope is the JSON value persisted in the screenshot_url column.
type ArtifactEnvelope struct {
	Images []Artifact `json:"images"`
}

// EncodeArtifacts serializes artifacts into the stored envelope. A nil or
// empty slice encodes as {"images":[]}, never as null.
func EncodeArtifacts(artifacts []Artifact) string {
	env := ArtifactEnvelope{Images: artifacts}
	if env.Images == nil {
		env.Images = []Artifact{}
	}
	b, _ := json.Marshal(env)
	return string(b)
}

// DecodeArtifacts parses a stored envelope back into its artifact list.
func DecodeArtifacts(s string) ([]Artifact, error) {
	var env ArtifactEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, err
	}
	return env.Images, nil
}

// AnnouncementRecord is the persisted announcement row, keyed by the feed's
// newsid. Immutable after the first insert.
type AnnouncementRecord struct {
	ID            string
	CompanyCode   string
	CompanyName   string
	Title         string
	Subject       string
	Summary       string
	Category      string
	FiledAt       time.Time
	PDFURL        string
	ScreenshotURL string
	SourcePage    string
	Exchange      string
	IndexName     string
}
