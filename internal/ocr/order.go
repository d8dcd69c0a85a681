package ocr

import "sort"

// SortGeometric orders lines top-to-bottom, then left-to-right. Lines whose
// vertical centers are within half a line height are treated as one row.
func SortGeometric(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Box, out[j].Box
		ca := (a.Min.Y + a.Max.Y) / 2
		cb := (b.Min.Y + b.Max.Y) / 2
		tol := max(a.Dy(), b.Dy()) / 2
		if d := ca - cb; d > tol || -d > tol {
			return ca < cb
		}
		return a.Min.X < b.Min.X
	})
	return out
}
