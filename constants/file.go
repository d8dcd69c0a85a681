package constants

import "strings"

// DocumentKind is the declared kind of an uploaded document.
type DocumentKind string

const (
	PDF   DocumentKind = "PDF"
	IMAGE DocumentKind = "IMAGE"
)

// ContentTypePDF is the only content type routed to the PDF rasterizer.
const ContentTypePDF = "application/pdf"

// FileTypes holds the allowed values for the format column of extract_job.
var FileTypes = []string{string(PDF), string(IMAGE)}

// AllowedExtensions holds the file extensions accepted by the CLI.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

// KindFromContentType routes application/pdf to PDF and everything else to IMAGE.
// Parameters such as "; charset=binary" are ignored.
func KindFromContentType(contentType string) DocumentKind {
	mt := contentType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if strings.EqualFold(strings.TrimSpace(mt), ContentTypePDF) {
		return PDF
	}
	return IMAGE
}

// KindFromExt maps a file extension to a document kind for local files.
func KindFromExt(ext string) DocumentKind {
	if NormalizeExt(ext) == "pdf" {
		return PDF
	}
	return IMAGE
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext is one of AllowedExtensions.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
