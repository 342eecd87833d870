package corpusfile

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/reference"
)

const sampleJSON = `{
  "enoch": {
    "48:1": "And in that place I saw the fountain of righteousness.",
    "48:2": "And at that hour that Son of Man was named.",
    "1:1": "The words of the blessing of Enoch."
  },
  "Charles": {
    "1:1": "The words of the blessing of Enoch, wherewith he blessed the elect."
  }
}`

const sampleOSIS = `<?xml version="1.0" encoding="UTF-8"?>
<osis xmlns="http://www.bibletechnologies.net/2003/OSIS/namespace">
  <osisText osisIDWork="Charles" xml:lang="en">
    <div type="book" osisID="1En">
      <chapter osisID="1En.48">
        <verse osisID="1En.48.1">And in that place I saw
          the fountain of righteousness.</verse>
        <verse osisID="1En.48.2 1En.48.3">And at that hour.</verse>
      </chapter>
      <chapter sID="1En.49" osisID="1En.49"/>
      <p><verse sID="v1" osisID="1En.49.1"/>For wisdom is poured out like water.<verse eID="v1"/></p>
      <chapter eID="1En.49"/>
    </div>
  </osisText>
</osis>`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func xzBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(data)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gzBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(data))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func text(t *testing.T, c *corpus.Corpus, translation, key string) string {
	t.Helper()
	k, err := corpus.ParseKey(key)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := c.Text(translation, k)
	if !ok {
		t.Fatalf("%s %s missing", translation, key)
	}
	return s
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path        string
		format      Format
		compression string
	}{
		{"enoch_texts.json", FormatJSON, ""},
		{"/srv/Enoch.JSON.xz", FormatJSON, ".xz"},
		{"enoch.json.gz", FormatJSON, ".gz"},
		{"enoch.db", FormatSQLite, ""},
		{"enoch.sqlite3", FormatSQLite, ""},
		{"charles.osis.xml", FormatOSIS, ""},
		{"charles.xml.xz", FormatOSIS, ".xz"},
		{"enoch.txt", FormatUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, c := DetectFormat(tt.path)
			if f != tt.format || c != tt.compression {
				t.Errorf("DetectFormat(%q) = %v, %q; want %v, %q", tt.path, f, c, tt.format, tt.compression)
			}
		})
	}
}

func TestLoadJSONVariants(t *testing.T) {
	paths := map[string]string{
		"plain": writeFile(t, "enoch_texts.json", []byte(sampleJSON)),
		"xz":    writeFile(t, "enoch_texts.json.xz", xzBytes(t, sampleJSON)),
		"gzip":  writeFile(t, "enoch_texts.json.gz", gzBytes(t, sampleJSON)),
	}

	var fingerprint string
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			c, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got := c.Translations(); len(got) != 2 || got[0] != "Charles" || got[1] != "enoch" {
				t.Errorf("Translations() = %v", got)
			}
			if got := text(t, c, "enoch", "48:2"); got != "And at that hour that Son of Man was named." {
				t.Errorf("48:2 = %q", got)
			}
			if fingerprint == "" {
				fingerprint = c.Fingerprint()
			} else if c.Fingerprint() != fingerprint {
				t.Errorf("fingerprint differs across compressions")
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"unknown extension", "enoch.txt", "{}", "unsupported"},
		{"bad json", "enoch.json", "{", "decode json"},
		{"bad key", "enoch.json", `{"enoch": {"x:1": "text"}}`, "x:1"},
		{"bad osis id", "bad.xml", `<osis><osisText><verse osisID="1En">x</verse></osisText></osis>`, "osisID"},
		{"compressed sqlite", "enoch.db.xz", "", "not supported"},
		{"json named as sqlite", "enoch.db", `{"enoch": {}}`, "content is json"},
		{"plain json named xz", "enoch.json.xz", `{"enoch": {}}`, "file type mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, []byte(tt.data)))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("Load() of a missing database succeeded")
	}
}

func TestReadOSIS(t *testing.T) {
	c, err := ReadOSIS(strings.NewReader(sampleOSIS), "fallback")
	if err != nil {
		t.Fatalf("ReadOSIS() error = %v", err)
	}
	if got := c.Translations(); len(got) != 1 || got[0] != "Charles" {
		t.Fatalf("Translations() = %v", got)
	}

	tests := map[string]string{
		"48:1": "And in that place I saw the fountain of righteousness.",
		"48:2": "And at that hour.",
		"48:3": "And at that hour.",
		"49:1": "For wisdom is poured out like water.",
	}
	for key, want := range tests {
		if got := text(t, c, "Charles", key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestReadOSISFallbackName(t *testing.T) {
	doc := `<osis><osisText><verse osisID="1En.1.1">The words.</verse></osisText></osis>`
	path := writeFile(t, "knibb.osis.xml", []byte(doc))
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.Has("knibb") {
		t.Errorf("Translations() = %v, want file stem", c.Translations())
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	src, err := ReadJSON(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "enoch.db")

	if err := ExportSQLite(context.Background(), src, path); err != nil {
		t.Fatalf("ExportSQLite() error = %v", err)
	}
	if err := ExportSQLite(context.Background(), src, path); err == nil {
		t.Error("ExportSQLite() overwrote an existing file")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Fingerprint() != src.Fingerprint() {
		t.Errorf("fingerprint changed through SQLite")
	}
	verses, err := got.Lookup("enoch", reference.Range(48, 1, 2))
	if err != nil || len(verses) != 2 {
		t.Errorf("Lookup() = %v, %v", verses, err)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	src, err := ReadJSON(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, src); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Fingerprint() != src.Fingerprint() {
		t.Error("fingerprint changed through JSON")
	}
}

func TestExport(t *testing.T) {
	src, err := ReadJSON(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	for _, name := range []string{"out/enoch.json", "enoch.json.xz", "enoch.json.gz", "enoch.sqlite"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Export(context.Background(), src, path); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Fingerprint() != src.Fingerprint() {
				t.Error("fingerprint changed through export")
			}
			if err := Export(context.Background(), src, path); err == nil || !strings.Contains(err.Error(), "already exists") {
				t.Errorf("second Export() error = %v", err)
			}
		})
	}

	for _, name := range []string{"enoch.xml", "enoch.db.xz", "enoch.txt"} {
		if err := Export(context.Background(), src, filepath.Join(dir, name)); err == nil {
			t.Errorf("Export(%s) succeeded", name)
		}
	}
}
