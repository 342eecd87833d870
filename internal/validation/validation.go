// Package validation checks corpus file paths and verifies that a file's
// content matches what its extension claims before a loader parses it.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxPathLength is the maximum accepted path length.
const MaxPathLength = 4096

// sniffLen covers every signature below.
const sniffLen = 512

var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// ValidatePath rejects empty, oversized and control-character paths.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// FileType is the outermost layout of a corpus file.
type FileType string

const (
	FileTypeXZ      FileType = "xz"
	FileTypeGzip    FileType = "gzip"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeXML     FileType = "xml"
	FileTypeJSON    FileType = "json"
	FileTypeUnknown FileType = "unknown"
)

var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypeSQLite, []byte("SQLite format 3\x00")},
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// DetectFileType identifies a header by magic bytes, then by the first
// significant character of text content.
func DetectFileType(header []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(header, sig.magic) {
			return sig.fileType
		}
	}

	text := bytes.TrimLeftFunc(bytes.TrimPrefix(header, utf8BOM), unicode.IsSpace)
	if len(text) == 0 || !isLikelyText(text) {
		return FileTypeUnknown
	}
	switch text[0] {
	case '{', '[':
		return FileTypeJSON
	case '<':
		return FileTypeXML
	}
	return FileTypeUnknown
}

// ExpectedType returns the outermost layout implied by the file name, so
// "enoch.json.xz" expects xz.
func ExpectedType(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xz":
		return FileTypeXZ
	case ".gz":
		return FileTypeGzip
	case ".db", ".sqlite", ".sqlite3":
		return FileTypeSQLite
	case ".xml", ".osis":
		return FileTypeXML
	case ".json":
		return FileTypeJSON
	}
	return FileTypeUnknown
}

// CheckContent reads the start of r and fails with ErrTypeMismatch when it
// clearly contradicts filename. Empty content and unrecognised text pass;
// the loader reports those with better context.
func CheckContent(r io.Reader, filename string) (FileType, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("read file header: %w", err)
	}

	expected := ExpectedType(filename)
	detected := DetectFileType(buf[:n])
	if n == 0 || detected == expected || detected == FileTypeUnknown && isTextType(expected) {
		return expected, nil
	}
	return detected, fmt.Errorf("%w: %s is named as %s but content is %s",
		ErrTypeMismatch, filepath.Base(filename), expected, detected)
}

// CheckFile validates path and its content header.
func CheckFile(path string) (FileType, error) {
	if err := ValidatePath(path); err != nil {
		return FileTypeUnknown, err
	}
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()
	return CheckContent(f, path)
}

func isTextType(t FileType) bool {
	return t == FileTypeJSON || t == FileTypeXML
}

// isLikelyText reports whether buf has no NUL bytes and is mostly
// printable ASCII or UTF-8.
func isLikelyText(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b == '\t' || b == '\n' || b == '\r' || b >= 0x20:
			printable++
		default:
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
