package ocr

import (
	"image"
	"strconv"
	"strings"
)

// TSV column indexes as emitted by `tesseract ... tsv`.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvCols
)

const wordLevel = "5"

type lineKey struct{ page, block, par, line string }

type lineAcc struct {
	words []string
	sum   float64
	n     int
	box   image.Rectangle
}

// ParseTSV groups tesseract word rows into lines in emission order.
// Line confidence is the mean word confidence scaled to 0..1.
func ParseTSV(out string) []Line {
	var order []lineKey
	acc := map[lineKey]*lineAcc{}

	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvCols || cols[colLevel] != wordLevel {
			continue
		}
		word := strings.TrimSpace(cols[colText])
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}

		key := lineKey{cols[colPage], cols[colBlock], cols[colPar], cols[colLine]}
		a, ok := acc[key]
		if !ok {
			a = &lineAcc{}
			acc[key] = a
			order = append(order, key)
		}
		a.words = append(a.words, word)
		a.sum += conf
		a.n++
		a.box = a.box.Union(wordBox(cols))
	}

	lines := make([]Line, 0, len(order))
	for _, key := range order {
		a := acc[key]
		text := NormalizeLine(strings.Join(a.words, " "))
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			Text:       text,
			Confidence: clamp01(a.sum / float64(a.n) / 100.0),
			Box:        a.box,
		})
	}
	return lines
}

func wordBox(cols []string) image.Rectangle {
	left, _ := strconv.Atoi(cols[colLeft])
	top, _ := strconv.Atoi(cols[colTop])
	w, _ := strconv.Atoi(cols[colWidth])
	h, _ := strconv.Atoi(cols[colHeight])
	return image.Rect(left, top, left+w, top+h)
}
