package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_CoversInputWithoutGaps(t *testing.T) {
	for _, n := range []int{1, 99, 1100, 1200, 1201, 2300, 5000, 12345} {
		text := strings.Repeat("abcdefghij", n/10+1)[:n]

		chunks := Chunk(text)
		require.NotEmpty(t, chunks, "length %d", n)

		step := DefaultChunkSize - DefaultChunkOverlap
		for i, c := range chunks {
			start := i * step
			end := min(start+DefaultChunkSize, n)
			assert.Equal(t, text[start:end], c, "chunk %d of length %d", i, n)
		}
		last := (len(chunks) - 1) * step
		assert.Equal(t, n, last+len(chunks[len(chunks)-1]), "last chunk must end at input end")
	}
}

func TestChunk_Overlap(t *testing.T) {
	text := strings.Repeat("x", 1500) + strings.Repeat("y", 1500)
	chunks := Chunk(text)
	require.Len(t, chunks, 3)

	assert.Equal(t, chunks[0][1100:], chunks[1][:100])
	assert.Equal(t, chunks[1][1100:], chunks[2][:100])
}

func TestChunkWith(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{name: "empty", text: "", size: 4, overlap: 1, want: nil},
		{name: "shorter than window", text: "abc", size: 4, overlap: 1, want: []string{"abc"}},
		{name: "overlapping", text: "abcdefg", size: 4, overlap: 1, want: []string{"abcd", "defg", "g"}},
		{name: "overlap ignored when too large", text: "abcdef", size: 3, overlap: 3, want: []string{"abc", "def"}},
		{name: "multibyte runes", text: "äöüßé", size: 2, overlap: 0, want: []string{"äö", "üß", "é"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkWith(tt.text, tt.size, tt.overlap))
		})
	}
}
