// Package reference parses compact chapter:verse references.
//
// Two forms are accepted once whitespace is removed:
//
//	48:1     single verse
//	48:1-10  verse range within one chapter
//
// Every component must be a positive decimal integer. Ranges whose start
// verse is after their end verse are rejected rather than resolving to an
// empty passage.
package reference

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/JuniperBot/core/errors"
)

// Reference is a validated chapter and verse range.
type Reference struct {
	Chapter    int `json:"chapter"`
	StartVerse int `json:"start_verse"`
	EndVerse   int `json:"end_verse"`
}

// IsRange reports whether the reference spans more than one verse.
// "48:1-1" is treated as the single verse 48:1.
func (r Reference) IsRange() bool {
	return r.EndVerse > r.StartVerse
}

// Len returns the number of verses the reference covers.
func (r Reference) Len() int {
	return r.EndVerse - r.StartVerse + 1
}

// Verses returns the verse numbers covered, ascending.
func (r Reference) Verses() []int {
	verses := make([]int, 0, r.Len())
	for v := r.StartVerse; v <= r.EndVerse; v++ {
		verses = append(verses, v)
	}
	return verses
}

// String renders the reference as "C:V" or "C:S-E".
func (r Reference) String() string {
	if r.IsRange() {
		return fmt.Sprintf("%d:%d-%d", r.Chapter, r.StartVerse, r.EndVerse)
	}
	return fmt.Sprintf("%d:%d", r.Chapter, r.StartVerse)
}

// Single builds a single-verse reference.
func Single(chapter, verse int) Reference {
	return Reference{Chapter: chapter, StartVerse: verse, EndVerse: verse}
}

// Range builds a range reference. It does not validate ordering.
func Range(chapter, start, end int) Reference {
	return Reference{Chapter: chapter, StartVerse: start, EndVerse: end}
}

//nolint:govet // participle grammar tags are not standard struct tags
type referenceGrammar struct {
	Chapter string  `@Int ":"`
	Start   string  `@Int`
	End     *string `( "-" @Int )?`
}

var referenceLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[:\-]`},
})

var referenceParser = participle.MustBuild[referenceGrammar](
	participle.Lexer(referenceLexer),
)

// Parse parses a raw reference string. All whitespace is removed first.
// Failures are *errors.Error of kind MalformedReference or InvertedRange.
func Parse(raw string) (Reference, error) {
	s := stripSpace(raw)
	if s == "" {
		return Reference{}, errors.New(errors.KindMalformedReference, "empty reference")
	}

	parsed, err := referenceParser.ParseString("", s)
	if err != nil {
		return Reference{}, &errors.Error{Kind: errors.KindMalformedReference, Detail: fmt.Sprintf("%q", raw), Err: err}
	}

	chapter, err := positive("chapter", parsed.Chapter)
	if err != nil {
		return Reference{}, err
	}
	start, err := positive("verse", parsed.Start)
	if err != nil {
		return Reference{}, err
	}
	if parsed.End == nil {
		return Single(chapter, start), nil
	}

	end, err := positive("end verse", *parsed.End)
	if err != nil {
		return Reference{}, err
	}
	if start > end {
		return Reference{}, errors.Newf(errors.KindInvertedRange, "%d:%d-%d", chapter, start, end)
	}
	return Range(chapter, start, end), nil
}

func positive(field, digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &errors.Error{Kind: errors.KindMalformedReference, Detail: field, Err: err}
	}
	if n < 1 {
		return 0, errors.Newf(errors.KindMalformedReference, "%s must be positive, got %d", field, n)
	}
	return n, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
