// Package errors provides the closed error taxonomy for passage lookup and
// pagination. Every fallible core operation returns an *Error (or wraps one),
// and hosts present failures through UserMessage, never through Error().
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies one member of the error taxonomy.
type Kind int

const (
	// KindInternal covers infrastructure failures (I/O, SQL, encoding).
	KindInternal Kind = iota
	// KindMalformedReference is a reference with non-numeric or missing components.
	KindMalformedReference
	// KindInvertedRange is a range whose start verse is after its end verse.
	KindInvertedRange
	// KindTranslationNotFound is a translation absent from the corpus.
	KindTranslationNotFound
	// KindChapterNotFound is a chapter with no entries in the translation.
	KindChapterNotFound
	// KindVerseNotFound is a lookup that resolved to no verse text.
	KindVerseNotFound
	// KindPassageTooLong is output that cannot be delivered in one message.
	KindPassageTooLong
	// KindUnauthorized is a navigation action from someone other than the owner.
	KindUnauthorized
	// KindSessionExpired is a navigation action after the idle timeout.
	KindSessionExpired
	// KindSessionNotFound is a navigation action addressed to an unknown session.
	KindSessionNotFound
)

// Sentinel errors, one per kind. *Error unwraps to these.
var (
	ErrInternal            = errors.New("internal error")
	ErrMalformedReference  = errors.New("malformed reference")
	ErrInvertedRange       = errors.New("inverted range")
	ErrTranslationNotFound = errors.New("translation not found")
	ErrChapterNotFound     = errors.New("chapter not found")
	ErrVerseNotFound       = errors.New("verse not found")
	ErrPassageTooLong      = errors.New("passage too long")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionNotFound     = errors.New("session not found")
)

var kindInfo = map[Kind]struct {
	name     string
	code     string
	sentinel error
	message  string
}{
	KindInternal:            {"Internal", "INTERNAL", ErrInternal, "Something went wrong."},
	KindMalformedReference:  {"MalformedReference", "MALFORMED_REFERENCE", ErrMalformedReference, "Invalid reference. Use chapter:verse or chapter:verse-verse, e.g. 48:1 or 48:1-10."},
	KindInvertedRange:       {"InvertedRange", "INVERTED_RANGE", ErrInvertedRange, "Invalid range: the first verse must not come after the last verse."},
	KindTranslationNotFound: {"TranslationNotFound", "TRANSLATION_NOT_FOUND", ErrTranslationNotFound, "That translation is not available."},
	KindChapterNotFound:     {"ChapterNotFound", "CHAPTER_NOT_FOUND", ErrChapterNotFound, "Chapter not found."},
	KindVerseNotFound:       {"VerseNotFound", "VERSE_NOT_FOUND", ErrVerseNotFound, "Verse not found."},
	KindPassageTooLong:      {"PassageTooLong", "PASSAGE_TOO_LONG", ErrPassageTooLong, "Passage too long to display in a single message."},
	KindUnauthorized:        {"Unauthorized", "UNAUTHORIZED", ErrUnauthorized, "Only the person who requested this passage can turn its pages."},
	KindSessionExpired:      {"SessionExpired", "SESSION_EXPIRED", ErrSessionExpired, "This passage has expired. Request it again to keep reading."},
	KindSessionNotFound:     {"SessionNotFound", "SESSION_NOT_FOUND", ErrSessionNotFound, "This passage is no longer available. Request it again to keep reading."},
}

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Code returns the stable wire code for the kind (e.g. "INVERTED_RANGE").
func (k Kind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return kindInfo[KindInternal].code
}

// UserMessage returns the fixed end-user text for the kind.
func (k Kind) UserMessage() string {
	if info, ok := kindInfo[k]; ok {
		return info.message
	}
	return kindInfo[KindInternal].message
}

// Error is a tagged failure from the taxonomy.
type Error struct {
	Kind   Kind   // Taxonomy member
	Detail string // Internal detail for logs; never shown to end users
	Err    error  // Underlying error, if any
}

func (e *Error) Error() string {
	base := kindInfo[e.Kind].sentinel
	if base == nil {
		base = ErrInternal
	}
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", base, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", base, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", base, e.Err)
	}
	return base.Error()
}

// Unwrap returns the sentinel for the kind so errors.Is matches it.
func (e *Error) Unwrap() []error {
	sentinel := kindInfo[e.Kind].sentinel
	if sentinel == nil {
		sentinel = ErrInternal
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

// UserMessage returns the fixed end-user text for the error's kind.
func (e *Error) UserMessage() string {
	return e.Kind.UserMessage()
}

// New creates an *Error of the given kind with internal detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates an *Error of the given kind with formatted internal detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Internal wraps an infrastructure error as KindInternal.
func Internal(err error, detail string) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}

// KindOf reports the taxonomy kind of err. Errors outside the taxonomy
// are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage returns the end-user text for any error, falling back to the
// generic internal message for errors outside the taxonomy.
func UserMessage(err error) string {
	return KindOf(err).UserMessage()
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target any) bool {
	return errors.As(err, target)
}
