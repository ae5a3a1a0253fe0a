package notify

import (
	"html/template"
	"strings"

	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

var bodyTemplate = template.Must(template.New("announcement").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #222;">
	<h2 style="margin-bottom: 0;">{{.Record.CompanyName}} <span style="color: #888; font-size: 0.8em;">({{.Record.CompanyCode}})</span></h2>
	<p style="color: #555; margin-top: 4px;">
		{{.Record.Exchange}} / {{.Record.IndexName}} &middot; {{.Record.Category}} &middot; {{.FiledAt}}
	</p>
	<h3>{{.Record.Subject}}</h3>
	{{if .ShowSummary}}<p>{{.Record.Summary}}</p>{{end}}
	{{range .Images}}
	<div style="margin: 12px 0;">
		<img src="{{.URL}}" alt="{{.Filename}}" style="max-width: 100%; border: 1px solid #ddd;" />
	</div>
	{{end}}
	{{if .Record.PDFURL}}<p><a href="{{.Record.PDFURL}}">Original PDF</a></p>{{end}}
	<p><a href="{{.Record.SourcePage}}">View on BSE</a></p>
</body>
</html>`))

type bodyData struct {
	Record      types.AnnouncementRecord
	FiledAt     string
	ShowSummary bool
	Images      []types.Artifact
}

func renderBody(rec types.AnnouncementRecord) (string, error) {
	// A corrupt envelope just means no inline images.
	images, _ := types.DecodeArtifacts(rec.ScreenshotURL)

	data := bodyData{
		Record:      rec,
		FiledAt:     rec.FiledAt.Format("02 Jan 2006 15:04"),
		ShowSummary: rec.Summary != "" && rec.Summary != rec.Subject,
		Images:      images,
	}

	var b strings.Builder
	if err := bodyTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
