/*
Package enrich captures and uploads the visual artifacts for an announcement:
a screenshot of the detail region and raster images of up to five PDF pages.

The collector never fails an item. Every capture, render, or upload problem
is absorbed locally and only narrows the artifact list; callers always get a
usable (possibly empty) slice back.
*/
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Sidth3dr3amer/NityaBSE/internal/bse"
	"github.com/Sidth3dr3amer/NityaBSE/internal/render"
	"github.com/Sidth3dr3amer/NityaBSE/internal/types"
)

const (
	pdfFetchTimeout = 30 * time.Second

	// maxPDFBytes caps the downloaded document size.
	maxPDFBytes = 32 << 20
)

// Uploader hands a local file to the image-hosting collaborator and returns
// its remote URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, newsid, kind string, page int) (string, error)
}

// Rasterizer renders PDF bytes into per-page PNG images.
type Rasterizer interface {
	RenderPages(pdf []byte, maxPages int) ([][]byte, error)
}

// PageCapturer screenshots an element of the currently loaded detail page.
type PageCapturer interface {
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
}

// Option configures the collector.
type Option func(*Collector)

// WithHTTPClient overrides the client used for PDF downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Collector) {
		c.http = hc
	}
}

// WithWorkDir overrides where artifact files are staged before upload.
func WithWorkDir(dir string) Option {
	return func(c *Collector) {
		c.workDir = dir
	}
}

// Collector gathers enrichment artifacts. A nil uploader disables all
// collection; a nil rasterizer disables only the PDF pages.
type Collector struct {
	uploader Uploader
	raster   Rasterizer
	http     *http.Client
	workDir  string
	log      *zap.Logger
}

// NewCollector builds a collector. logger must be non-nil.
func NewCollector(uploader Uploader, raster Rasterizer, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		uploader: uploader,
		raster:   raster,
		http:     &http.Client{Timeout: pdfFetchTimeout},
		workDir:  filepath.Join(os.TempDir(), "nityabse"),
		log:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect returns the artifacts it managed to capture and upload, in order:
// detail screenshot first, then PDF pages by ordinal. It never returns an
// error; a fully failed collection is just an empty slice.
func (c *Collector) Collect(ctx context.Context, page PageCapturer, newsid, pdfURL string) []types.Artifact {
	if c.uploader == nil {
		return nil
	}

	itemDir := filepath.Join(c.workDir, newsid)
	if err := os.MkdirAll(itemDir, 0o755); err != nil {
		c.log.Warn("cannot create artifact staging dir", zap.String("newsid", newsid), zap.Error(err))
		return nil
	}
	defer os.RemoveAll(itemDir)

	var artifacts []types.Artifact

	if a, ok := c.collectScreenshot(ctx, page, newsid, itemDir); ok {
		artifacts = append(artifacts, a)
	}

	if pdfURL != "" && c.raster != nil {
		artifacts = append(artifacts, c.collectPDFPages(ctx, newsid, pdfURL, itemDir)...)
	}

	return artifacts
}

func (c *Collector) collectScreenshot(ctx context.Context, page PageCapturer, newsid, itemDir string) (types.Artifact, bool) {
	if page == nil {
		return types.Artifact{}, false
	}

	buf, err := page.ElementScreenshot(ctx, bse.DetailContainerSelector)
	if err != nil {
		c.log.Warn("screenshot capture failed", zap.String("newsid", newsid), zap.Error(err))
		return types.Artifact{}, false
	}
	if len(buf) == 0 {
		c.log.Warn("screenshot capture returned no data", zap.String("newsid", newsid))
		return types.Artifact{}, false
	}

	localPath := filepath.Join(itemDir, "announcement.png")
	if err := os.WriteFile(localPath, buf, 0o644); err != nil {
		c.log.Warn("cannot stage screenshot", zap.String("newsid", newsid), zap.Error(err))
		return types.Artifact{}, false
	}

	remoteURL, err := c.uploader.Upload(ctx, localPath, newsid, types.ArtifactAnnouncement, 0)
	if err != nil {
		c.log.Warn("screenshot upload failed", zap.String("newsid", newsid), zap.Error(err))
		return types.Artifact{}, false
	}

	return types.Artifact{
		Filename: "announcement_details.png",
		URL:      remoteURL,
		Type:     types.ArtifactAnnouncement,
	}, true
}

func (c *Collector) collectPDFPages(ctx context.Context, newsid, pdfURL, itemDir string) []types.Artifact {
	pdf, ok := c.downloadPDF(ctx, newsid, pdfURL)
	if !ok {
		return nil
	}

	pages, err := c.raster.RenderPages(pdf, render.MaxPages)
	if err != nil {
		c.log.Warn("pdf rasterization failed", zap.String("newsid", newsid), zap.Error(err))
		return nil
	}

	var artifacts []types.Artifact
	for i, img := range pages {
		pageNum := i + 1
		filename := fmt.Sprintf("pdf_page_%d.png", pageNum)

		localPath := filepath.Join(itemDir, filename)
		if err := os.WriteFile(localPath, img, 0o644); err != nil {
			c.log.Warn("cannot stage pdf page", zap.String("newsid", newsid), zap.Int("page", pageNum), zap.Error(err))
			continue
		}

		remoteURL, err := c.uploader.Upload(ctx, localPath, newsid, types.ArtifactPDFPage, pageNum)
		if err != nil {
			c.log.Warn("pdf page upload failed", zap.String("newsid", newsid), zap.Int("page", pageNum), zap.Error(err))
			continue
		}

		artifacts = append(artifacts, types.Artifact{
			Filename:   filename,
			URL:        remoteURL,
			Type:       types.ArtifactPDFPage,
			PageNumber: pageNum,
		})
	}

	return artifacts
}

// downloadPDF fetches the document with browser-like headers. A non-success
// status is an expected condition and skips the pages silently.
func (c *Collector) downloadPDF(ctx context.Context, newsid, pdfURL string) ([]byte, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, pdfFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pdfURL, nil)
	if err != nil {
		c.log.Warn("invalid pdf url", zap.String("newsid", newsid), zap.String("url", pdfURL), zap.Error(err))
		return nil, false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("Referer", bse.BaseURL+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("pdf download failed", zap.String("newsid", newsid), zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("pdf download skipped", zap.String("newsid", newsid), zap.Int("status", resp.StatusCode))
		return nil, false
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		c.log.Warn("pdf read failed", zap.String("newsid", newsid), zap.Error(err))
		return nil, false
	}

	return pdf, true
}
