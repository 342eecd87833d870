// Package corpusfile loads verse corpora from disk.
//
// Supported layouts, chosen by file extension:
//
//	.json                  {"<translation>": {"C:V": "text"}}
//	.db, .sqlite, .sqlite3 table verses(translation, chapter, verse, text)
//	.xml, .osis            OSIS with <verse osisID="Book.C.V">
//
// JSON and OSIS files may be compressed with xz (.xz) or gzip (.gz). Export
// writes SQLite or (compressed) JSON.
package corpusfile

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/internal/validation"
)

// Format identifies a corpus file layout.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatSQLite
	FormatOSIS
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatSQLite:
		return "sqlite"
	case FormatOSIS:
		return "osis"
	default:
		return "unknown"
	}
}

// compression suffixes, outermost first.
var compressions = []string{".xz", ".gz"}

// DetectFormat returns the layout and compression suffix for path.
func DetectFormat(path string) (Format, string) {
	name := strings.ToLower(filepath.Base(path))
	compression := ""
	for _, ext := range compressions {
		if strings.HasSuffix(name, ext) {
			compression = ext
			name = strings.TrimSuffix(name, ext)
			break
		}
	}

	switch filepath.Ext(name) {
	case ".json":
		return FormatJSON, compression
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, compression
	case ".xml", ".osis":
		return FormatOSIS, compression
	}
	return FormatUnknown, compression
}

// Load reads the corpus at path.
func Load(path string) (*corpus.Corpus, error) {
	format, compression := DetectFormat(path)
	switch format {
	case FormatUnknown:
		return nil, fmt.Errorf("unsupported corpus file: %s", path)
	case FormatSQLite:
		if compression != "" {
			return nil, fmt.Errorf("compressed SQLite corpora are not supported: %s", path)
		}
	}
	if _, err := validation.CheckFile(path); err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	if format == FormatSQLite {
		return LoadSQLite(path)
	}

	r, err := open(path, compression)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if format == FormatJSON {
		c, err := ReadJSON(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil
	}
	c, err := ReadOSIS(r, stem(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// reader closes the decompressor, when there is one, and the file.
type reader struct {
	io.Reader
	closers []io.Closer
}

func (r *reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func open(path, compression string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}

	switch compression {
	case ".xz":
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return &reader{Reader: xzr, closers: []io.Closer{f}}, nil
	case ".gz":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &reader{Reader: gzr, closers: []io.Closer{gzr, f}}, nil
	}
	return f, nil
}

// stem returns the file name without directory or extensions.
func stem(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}
