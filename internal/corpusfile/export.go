package corpusfile

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/internal/validation"
)

// Export writes c to a new file at path in the layout its extension
// names: SQLite, or JSON optionally compressed with xz or gzip. An
// existing file is an error and a failed export leaves nothing behind.
func Export(ctx context.Context, c *corpus.Corpus, path string) error {
	if err := validation.ValidatePath(path); err != nil {
		return err
	}
	format, compression := DetectFormat(path)
	switch {
	case format == FormatSQLite && compression == "":
		return ExportSQLite(ctx, c, path)
	case format != FormatJSON:
		return fmt.Errorf("cannot export to %s: use .db, .sqlite, .json, .json.xz or .json.gz", path)
	}

	w, err := create(path, compression)
	if err != nil {
		return err
	}
	if err := WriteJSON(w, c); err != nil {
		w.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("finish %s: %w", path, err)
	}
	return nil
}

// writer flushes the compressor before closing the file.
type writer struct {
	io.Writer
	closers []io.Closer
}

func (w *writer) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func create(path, compression string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("export target already exists: %s", path)
		}
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	switch compression {
	case ".xz":
		xzw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return &writer{Writer: xzw, closers: []io.Closer{xzw, f}}, nil
	case ".gz":
		gzw := gzip.NewWriter(f)
		return &writer{Writer: gzw, closers: []io.Closer{gzw, f}}, nil
	}
	return f, nil
}
