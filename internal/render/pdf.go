/*
Package render rasterizes PDF pages to PNG images via MuPDF.
*/
package render

import (
	"bytes"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"
)

// MaxPages caps how many pages of a document are rasterized, regardless of
// document length.
const MaxPages = 5

// renderDPI is twice the PDF baseline of 72 DPI, i.e. a 2x raster scale.
const renderDPI = 144

// Rasterizer renders PDF pages to PNG bytes.
type Rasterizer struct{}

// RenderPages rasterizes up to maxPages pages in document order. maxPages <= 0
// means MaxPages.
func (Rasterizer) RenderPages(pdf []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, eris.Wrap(err, "render: open pdf")
	}
	defer doc.Close()

	if maxPages <= 0 {
		maxPages = MaxPages
	}
	n := doc.NumPage()
	if n > maxPages {
		n = maxPages
	}

	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, renderDPI)
		if err != nil {
			return nil, eris.Wrapf(err, "render: rasterize page %d", i+1)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, eris.Wrapf(err, "render: encode page %d", i+1)
		}
		pages = append(pages, buf.Bytes())
	}

	return pages, nil
}
