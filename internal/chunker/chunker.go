package chunker

import (
	"regexp"
	"strings"

	"pubmedflo/internal/util"
)

// Chunk is one overlapping window over a document's normalized text. Offsets
// are rune positions into that text, so Text always equals the slice
// [StartOffset:EndOffset) and re-chunking is byte-identical across runs.
type Chunk struct {
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
	ContentHash string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize folds the raw extracted text to ASCII and collapses whitespace
// runs to single spaces, so chunk boundaries are stable across extractors.
func Normalize(raw string) string {
	s := util.SanitizeText(raw)
	b := strings.Builder{}
	b.Grow(len(s))
	for _, ch := range s {
		if ch < 0x80 {
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// Split cuts normalized text into overlapping windows: chunk i starts at
// i*(chunkSize-overlap), so each chunk begins where the previous one ended
// minus the overlap. The final chunk may be shorter than chunkSize; no chunk
// is ever empty. A document shorter than one chunk yields exactly one chunk
// covering the whole text.
func Split(text string, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := chunkSize - overlap

	out := make([]Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		part := string(runes[start:end])
		out = append(out, Chunk{
			Index:       len(out),
			Text:        part,
			StartOffset: start,
			EndOffset:   end,
			ContentHash: util.SHA256Hex([]byte(part)),
		})
		if end == len(runes) {
			break
		}
	}
	return out
}
