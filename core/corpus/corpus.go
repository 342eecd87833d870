// Package corpus holds the immutable, in-memory verse store.
//
// A Corpus maps translation name to verse key to text. It is built once
// (through Builder or New) and is safe for concurrent readers afterwards;
// no method mutates it.
package corpus

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/reference"
)

// Key identifies one verse within a translation.
type Key struct {
	Chapter int
	Verse   int
}

// String renders the key in the persisted "chapter:verse" form.
func (k Key) String() string {
	return strconv.Itoa(k.Chapter) + ":" + strconv.Itoa(k.Verse)
}

// ParseKey parses a persisted "chapter:verse" key. Both parts must be
// positive decimal integers.
func ParseKey(s string) (Key, error) {
	chapter, verse, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("invalid verse key %q: missing ':'", s)
	}
	c, err := keyPart(chapter)
	if err != nil {
		return Key{}, fmt.Errorf("invalid verse key %q: chapter: %w", s, err)
	}
	v, err := keyPart(verse)
	if err != nil {
		return Key{}, fmt.Errorf("invalid verse key %q: verse: %w", s, err)
	}
	return Key{Chapter: c, Verse: v}, nil
}

func keyPart(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}

// Verse is one resolved verse of a passage. Missing is set when the
// chapter exists but this verse has no text.
type Verse struct {
	Number  int
	Text    string
	Missing bool
}

// Stats summarizes one translation.
type Stats struct {
	Translation string `json:"translation"`
	Chapters    int    `json:"chapters"`
	Verses      int    `json:"verses"`
}

type translation struct {
	name     string
	verses   map[Key]string
	chapters map[int]int // chapter -> verse count
}

// Corpus is an immutable multi-translation verse store.
type Corpus struct {
	translations map[string]*translation // keyed by lower-cased name
	names        []string
	fingerprint  string
}

// New builds a Corpus from the persisted layout:
// translation name -> "chapter:verse" -> text.
// Translations with no entries are omitted.
func New(data map[string]map[string]string) (*Corpus, error) {
	b := NewBuilder()
	for name, verses := range data {
		for rawKey, text := range verses {
			key, err := ParseKey(rawKey)
			if err != nil {
				return nil, fmt.Errorf("translation %q: %w", name, err)
			}
			if err := b.Add(name, key, text); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}

// Lookup resolves ref against the named translation.
//
// A translation or chapter with no entries fails fast with
// TranslationNotFound or ChapterNotFound. Inside an existing chapter each
// requested verse yields exactly one Verse, in ascending order; misses are
// marked Missing, so a range always yields one Verse per requested number.
// A single verse without text fails with VerseNotFound.
func (c *Corpus) Lookup(translationName string, ref reference.Reference) ([]Verse, error) {
	t, ok := c.translation(translationName)
	if !ok {
		return nil, errors.Newf(errors.KindTranslationNotFound, "%q", translationName)
	}
	if t.chapters[ref.Chapter] == 0 {
		return nil, errors.Newf(errors.KindChapterNotFound, "%s chapter %d", t.name, ref.Chapter)
	}

	if !ref.IsRange() {
		text, ok := t.verses[Key{Chapter: ref.Chapter, Verse: ref.StartVerse}]
		if !ok {
			return nil, errors.Newf(errors.KindVerseNotFound, "%s %s", t.name, ref)
		}
		return []Verse{{Number: ref.StartVerse, Text: text}}, nil
	}

	verses := make([]Verse, 0, ref.Len())
	for _, n := range ref.Verses() {
		text, ok := t.verses[Key{Chapter: ref.Chapter, Verse: n}]
		verses = append(verses, Verse{Number: n, Text: text, Missing: !ok})
	}
	return verses, nil
}

// Text returns the text for a single key.
func (c *Corpus) Text(translationName string, key Key) (string, bool) {
	t, ok := c.translation(translationName)
	if !ok {
		return "", false
	}
	text, ok := t.verses[key]
	return text, ok
}

// Has reports whether the translation exists.
func (c *Corpus) Has(translationName string) bool {
	_, ok := c.translation(translationName)
	return ok
}

// Canonical returns the stored spelling of a translation name.
func (c *Corpus) Canonical(translationName string) (string, bool) {
	t, ok := c.translation(translationName)
	if !ok {
		return "", false
	}
	return t.name, true
}

// Translations returns the translation names, sorted.
func (c *Corpus) Translations() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Stats returns per-translation counts, sorted by name.
func (c *Corpus) Stats() []Stats {
	out := make([]Stats, 0, len(c.names))
	for _, name := range c.names {
		t := c.translations[strings.ToLower(name)]
		out = append(out, Stats{Translation: t.name, Chapters: len(t.chapters), Verses: len(t.verses)})
	}
	return out
}

// Each calls fn for every entry in translation, key order. It stops at
// the first error.
func (c *Corpus) Each(fn func(translation string, key Key, text string) error) error {
	for _, name := range c.names {
		t := c.translations[strings.ToLower(name)]
		for _, key := range sortedKeys(t.verses) {
			if err := fn(t.name, key, t.verses[key]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Fingerprint returns the BLAKE3 hex digest of the canonical entry stream.
// Two corpora with identical content share a fingerprint regardless of
// the file format they were loaded from.
func (c *Corpus) Fingerprint() string {
	return c.fingerprint
}

func (c *Corpus) translation(name string) (*translation, bool) {
	t, ok := c.translations[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

func sortedKeys(m map[Key]string) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Chapter != keys[j].Chapter {
			return keys[i].Chapter < keys[j].Chapter
		}
		return keys[i].Verse < keys[j].Verse
	})
	return keys
}

// Builder accumulates entries for a Corpus. It is not safe for concurrent
// use; the Corpus it builds is.
type Builder struct {
	translations map[string]*translation
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{translations: make(map[string]*translation)}
}

// Add records one verse. Translation names are matched case-insensitively;
// the first spelling seen is kept. Duplicate keys are an error.
func (b *Builder) Add(translationName string, key Key, text string) error {
	name := strings.TrimSpace(translationName)
	if name == "" {
		return fmt.Errorf("empty translation name for %s", key)
	}
	if key.Chapter < 1 || key.Verse < 1 {
		return fmt.Errorf("translation %q: invalid verse key %s", name, key)
	}
	id := strings.ToLower(name)
	t, ok := b.translations[id]
	if !ok {
		t = &translation{name: name, verses: make(map[Key]string), chapters: make(map[int]int)}
		b.translations[id] = t
	}
	if _, dup := t.verses[key]; dup {
		return fmt.Errorf("translation %q: duplicate verse key %s", t.name, key)
	}
	t.verses[key] = text
	t.chapters[key.Chapter]++
	return nil
}

// Build freezes the accumulated entries. The Builder must not be reused.
func (b *Builder) Build() *Corpus {
	c := &Corpus{translations: b.translations}
	for _, t := range b.translations {
		c.names = append(c.names, t.name)
	}
	sort.Strings(c.names)
	b.translations = nil

	h := blake3.New()
	_ = c.Each(func(translation string, key Key, text string) error {
		fmt.Fprintf(h, "%s\x00%s\x00%s\n", translation, key, text)
		return nil
	})
	c.fingerprint = hex.EncodeToString(h.Sum(nil))
	return c
}
