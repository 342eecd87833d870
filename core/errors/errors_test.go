package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorUnwrapsToSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindInternal, ErrInternal},
		{KindMalformedReference, ErrMalformedReference},
		{KindInvertedRange, ErrInvertedRange},
		{KindTranslationNotFound, ErrTranslationNotFound},
		{KindChapterNotFound, ErrChapterNotFound},
		{KindVerseNotFound, ErrVerseNotFound},
		{KindPassageTooLong, ErrPassageTooLong},
		{KindUnauthorized, ErrUnauthorized},
		{KindSessionExpired, ErrSessionExpired},
		{KindSessionNotFound, ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "detail")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
			if got := KindOf(fmt.Errorf("wrapped: %w", err)); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			if tt.kind.UserMessage() == "" {
				t.Error("UserMessage() is empty")
			}
			if tt.kind.Code() == "" {
				t.Error("Code() is empty")
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "kind only",
			err:     &Error{Kind: KindVerseNotFound},
			wantMsg: "verse not found",
		},
		{
			name:    "with detail",
			err:     &Error{Kind: KindInvertedRange, Detail: "5:10-3"},
			wantMsg: "inverted range: 5:10-3",
		},
		{
			name:    "with detail and cause",
			err:     &Error{Kind: KindInternal, Detail: "open corpus", Err: fmt.Errorf("disk error")},
			wantMsg: "internal error: open corpus: disk error",
		},
		{
			name:    "with cause only",
			err:     &Error{Kind: KindInternal, Err: fmt.Errorf("disk error")},
			wantMsg: "internal error: disk error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := fmt.Errorf("no such table: verses")
	err := Internal(cause, "query verses")
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if !errors.Is(err, ErrInternal) {
		t.Error("errors.Is(err, ErrInternal) = false")
	}
}

func TestUserMessageNeverLeaksDetail(t *testing.T) {
	err := Newf(KindMalformedReference, "strconv.Atoi: parsing %q: invalid syntax", "abc")
	if strings.Contains(UserMessage(err), "strconv") {
		t.Errorf("UserMessage leaked detail: %q", UserMessage(err))
	}

	raw := fmt.Errorf("runtime error: index out of range")
	if got := UserMessage(raw); got != KindInternal.UserMessage() {
		t.Errorf("UserMessage(raw) = %q, want generic message", got)
	}
}

func TestUnknownKind(t *testing.T) {
	k := Kind(99)
	if got := k.String(); got != "Kind(99)" {
		t.Errorf("String() = %q", got)
	}
	if got := k.Code(); got != "INTERNAL" {
		t.Errorf("Code() = %q", got)
	}
	if !errors.Is(&Error{Kind: k}, ErrInternal) {
		t.Error("unknown kind should unwrap to ErrInternal")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := New(KindChapterNotFound, "999")
	wrapped := Wrapf(base, "lookup %s", "enoch")
	if !Is(wrapped, ErrChapterNotFound) {
		t.Error("wrapped error lost its kind")
	}
	var e *Error
	if !As(wrapped, &e) || e.Kind != KindChapterNotFound {
		t.Error("As() failed to recover *Error")
	}
}
