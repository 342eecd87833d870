// Package chunk splits rendered text into bounded, ordered segments.
//
// Splits happen at line boundaries wherever possible, so a verse line that
// fits within the limit always lands whole in one chunk. A line longer than
// the limit is cut at the last whitespace in the window, or at a plain
// character boundary when there is none. Concatenating the chunks in order
// reproduces the input exactly.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/JuniperBot/core/errors"
)

// Chunk is one bounded segment and its position in the sequence.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// Split breaks text into chunks of at most limit characters.
func Split(text string, limit int) ([]Chunk, error) {
	if limit < 1 {
		return nil, errors.Newf(errors.KindInternal, "chunk limit must be positive, got %d", limit)
	}
	if text == "" {
		return nil, errors.New(errors.KindInternal, "nothing to chunk")
	}

	var (
		chunks []Chunk
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: cur.String()})
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if curLen+n <= limit {
			cur.WriteString(line)
			curLen += n
			continue
		}

		flush()
		if n <= limit {
			cur.WriteString(line)
			curLen = n
			continue
		}

		var pieces []string
		if n == limit+1 && strings.HasSuffix(line, "\n") {
			// The line itself fits; only its newline spills over.
			pieces = []string{strings.TrimSuffix(line, "\n"), "\n"}
		} else {
			pieces = forceSplit(line, limit)
		}
		for _, p := range pieces[:len(pieces)-1] {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: p})
		}
		last := pieces[len(pieces)-1]
		cur.WriteString(last)
		curLen = utf8.RuneCountInString(last)
	}
	flush()

	return chunks, nil
}

// forceSplit cuts an over-long line into pieces of at most limit
// characters, preferring to end each piece just after whitespace in the
// back half of the window.
func forceSplit(line string, limit int) []string {
	runes := []rune(line)
	var pieces []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(pieces, string(runes))
}

// Join concatenates chunk texts in order.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}
