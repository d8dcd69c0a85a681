package ocr

import (
	"regexp"
	"strings"
)

var (
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reBoxNoise   = regexp.MustCompile(`^\s*[_\-=|]{3,}\s*$`)
)

// NormalizeLine collapses noisy whitespace within one line and drops ruler
// artifacts such as "-----". An empty result means the line carries no text.
func NormalizeLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if reBoxNoise.MatchString(s) {
		return ""
	}
	return s
}
