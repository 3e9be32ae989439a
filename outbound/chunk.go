package outbound

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the per-message character budget for replies.
const DefaultChunkLimit = 300

// Chunk splits text into messages of at most limit characters, breaking
// only at whitespace. Runs of whitespace collapse to a single space, so
// joining the chunks with spaces gives back the words of text in order.
//
// A single word longer than limit is emitted as its own chunk and may
// exceed the limit. A limit of zero or less disables splitting. Text with
// no words yields no chunks.
func Chunk(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if limit <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if size > 0 && size+1+n > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte(' ')
			size++
		}
		current.WriteString(word)
		size += n
	}
	if size > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
