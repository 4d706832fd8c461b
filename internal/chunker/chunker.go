// Package chunker splits flattened repository text into overlapping,
// boundary-aware segments suitable for embedding.
package chunker

import "strings"

// Default chunking parameters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Split cuts text into segments of at most size characters, counted as
// Unicode code points, with the given overlap between consecutive segments.
// When a segment would end mid-text it prefers cutting just after the last
// sentence terminator past the segment midpoint, then the last space past the
// midpoint, and otherwise cuts hard at size. Segments are trimmed and empty
// ones dropped. The function is pure and deterministic; empty input yields no
// segments.
func Split(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + size

		if end < len(runes) {
			window := runes[start:end]
			mid := size / 2
			if dot := lastIndex(window, '.'); dot > mid {
				end = start + dot + 1
			} else if sp := lastIndex(window, ' '); sp > mid {
				end = start + sp
			}
		}

		sliceEnd := end
		if sliceEnd > len(runes) {
			sliceEnd = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:sliceEnd])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		// Advance at least one character so overlap >= size cannot stall the scan.
		next := end - overlap
		if next < start+1 {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// lastIndex returns the index of the last occurrence of r in rs, or -1.
func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
