package document

import (
	"image"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
)

// RawDocument is an uploaded file before rasterization.
type RawDocument struct {
	Bytes []byte
	Kind  constants.DocumentKind
}

// Page is the single raster image every downstream stage works from.
// It is owned by one request and never shared.
type Page struct {
	Image      image.Image
	SourceKind constants.DocumentKind
	// DPI is the render resolution for PDFs; zero for raster uploads.
	DPI int
	// Format is the decoder name reported by image.Decode ("png", "jpeg", ...).
	Format string
}

func (p *Page) Width() int  { return p.Image.Bounds().Dx() }
func (p *Page) Height() int { return p.Image.Bounds().Dy() }
