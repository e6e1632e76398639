package config

import "bytes"

// LineFinder approximates the source line of each XML element by scanning
// forward through the raw document text for "<tagname" occurrences in
// document order. encoding/xml's struct-based Unmarshal discards position
// info, and the pack carries no precedent for a streaming XML decoder
// keeping both -- this scan-forward approach is the stdlib-only
// approximation. Lines are exact only when lookups follow file order: Load
// looks up every <ruleset> before any <proxy>, so a <proxy> written before
// a <ruleset> gets line 0 or a later line, and LineOf("rule") also matches
// "<ruleset".
type LineFinder struct {
	data   []byte
	cursor int
}

// NewLineFinder wraps the raw config bytes for sequential line lookups.
func NewLineFinder(data []byte) *LineFinder {
	return &LineFinder{data: data}
}

// LineOf returns the 1-based line of the next "<tagname" after the last
// lookup, or 0 if no further occurrence exists.
func (lf *LineFinder) LineOf(tag string) int {
	idx := bytes.Index(lf.data[lf.cursor:], []byte("<"+tag))
	if idx < 0 {
		return 0
	}
	abs := lf.cursor + idx
	lf.cursor = abs + 1
	return 1 + bytes.Count(lf.data[:abs], []byte("\n"))
}
