// Package render turns resolved verses into display text.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/reference"
)

// Placeholder is shown in place of a verse missing from an existing chapter.
const Placeholder = "[Not found]"

// Per-message limits of the two presentation surfaces, in characters.
const (
	EmbedLimit = 4096
	PlainLimit = 2000
)

// Mode selects the presentation surface.
type Mode int

const (
	// ModeEmbed is a structured block: title and footer are separate
	// fields, the verse lines form a description bounded by EmbedLimit.
	ModeEmbed Mode = iota
	// ModePlain is a single text message bounded by PlainLimit, with the
	// title as its first line.
	ModePlain
)

// ParseMode parses "embed" or "plain". The empty string selects embed.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "embed":
		return ModeEmbed, nil
	case "plain", "text":
		return ModePlain, nil
	}
	return ModeEmbed, fmt.Errorf("unknown presentation mode %q", s)
}

func (m Mode) String() string {
	if m == ModePlain {
		return "plain"
	}
	return "embed"
}

// Limit returns the per-message character limit of the mode.
func (m Mode) Limit() int {
	if m == ModePlain {
		return PlainLimit
	}
	return EmbedLimit
}

// Formatter builds Output for one book.
type Formatter struct {
	Book            string // e.g. "1 Enoch"
	ShowTranslation bool   // append "(<translation>)" to titles
}

// Output is the rendered passage, prior to any chunking.
type Output struct {
	Title  string
	Footer string
	Lines  []string // one per verse, ascending
}

// Format renders verses, which must be the ascending result of resolving
// ref against translation.
func (f Formatter) Format(translation string, ref reference.Reference, verses []corpus.Verse) Output {
	title := strings.TrimSpace(f.Book + " " + ref.String())
	if f.ShowTranslation && translation != "" {
		title += " (" + translation + ")"
	}

	lines := make([]string, len(verses))
	for i, v := range verses {
		lines[i] = Line(v)
	}

	out := Output{Title: title, Lines: lines}
	if f.Book != "" {
		out.Footer = "From " + f.Book
	}
	return out
}

// Line formats one verse as "**N.** text".
func Line(v corpus.Verse) string {
	text := v.Text
	if v.Missing {
		text = Placeholder
	}
	return fmt.Sprintf("**%d.** %s", v.Number, text)
}

// Body returns the verse lines joined by newlines.
func (o Output) Body() string {
	return strings.Join(o.Lines, "\n")
}

// Text returns the content that must fit one message of the given mode:
// the body for embeds, the bold title line plus body for plain text.
func (o Output) Text(mode Mode) string {
	if mode == ModePlain {
		return TitleLine(o.Title) + o.Body()
	}
	return o.Body()
}

// Len returns the length of Text(mode) in characters.
func (o Output) Len(mode Mode) int {
	return utf8.RuneCountInString(o.Text(mode))
}

// Fits reports whether the output can be delivered as one message.
func (o Output) Fits(mode Mode) bool {
	return o.Len(mode) <= mode.Limit()
}

// TitleLine renders a title as the first line of a plain message.
func TitleLine(title string) string {
	return "**" + title + "**\n"
}
