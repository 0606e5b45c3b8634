// Package textproc holds the lexical heuristics applied to extracted document
// text before it is handed to the question generator.
package textproc

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 100
)

// Chunk splits text into DefaultChunkSize windows that overlap by DefaultChunkOverlap.
func Chunk(text string) []string {
	return ChunkWith(text, DefaultChunkSize, DefaultChunkOverlap)
}

// ChunkWith splits text into windows of size runes, each starting size-overlap
// runes after the previous one. The last window may be shorter. Every rune of
// text belongs to at least one window.
func ChunkWith(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
