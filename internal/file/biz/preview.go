package biz

import (
	"bytes"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// Previewer derives public previews: raster images become a heavily
// blurred, bounded re-encode; PDFs yield a rasterization of the first page.
// Everything else gets no preview.
type Previewer struct {
	maxDim    int
	blurSigma float64
}

func NewPreviewer() *Previewer {
	return &Previewer{maxDim: 400, blurSigma: 15}
}

func (p *Previewer) Derive(data []byte, mimeType string) ([]byte, string, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return p.imagePreview(data)
	case mimeType == "application/pdf":
		return p.pdfPreview(data)
	default:
		return nil, "", false
	}
}

func (p *Previewer) imagePreview(data []byte) ([]byte, string, bool) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false
	}

	img = imaging.Fit(img, p.maxDim, p.maxDim, imaging.Lanczos)
	img = imaging.Blur(img, p.blurSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, "", false
	}
	return buf.Bytes(), "image/png", true
}

func (p *Previewer) pdfPreview(data []byte) ([]byte, string, bool) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, "", false
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, "", false
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, "", false
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", false
	}
	return buf.Bytes(), "image/png", true
}
