package corpusfile

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
)

var (
	workExpr  = xpath.MustCompile(`//osisText/@osisIDWork`)
	verseExpr = xpath.MustCompile(`//verse[@osisID]`)
)

// ReadOSIS reads the verses of an OSIS document. The translation name is
// osisText/@osisIDWork, or fallback when that is empty.
//
// Both container verses (<verse osisID="...">text</verse>) and milestone
// verses (<verse sID="..." osisID="..."/>text<verse eID="..."/>) are
// accepted. A verse covering several osisIDs is stored under each.
func ReadOSIS(r io.Reader, fallback string) (*corpus.Corpus, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse osis: %w", err)
	}

	name := fallback
	if work := xmlquery.QuerySelector(doc, workExpr); work != nil {
		if v := strings.TrimSpace(work.InnerText()); v != "" {
			name = v
		}
	}

	b := corpus.NewBuilder()
	for _, v := range xmlquery.QuerySelectorAll(doc, verseExpr) {
		text := verseText(v)
		for _, id := range strings.Fields(v.SelectAttr("osisID")) {
			key, err := osisKey(id)
			if err != nil {
				return nil, err
			}
			if err := b.Add(name, key, text); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}

// verseText returns the normalized text of a container verse, or of the
// siblings up to the matching eID for a milestone verse.
func verseText(v *xmlquery.Node) string {
	sid := v.SelectAttr("sID")
	if sid == "" || v.FirstChild != nil {
		return strings.Join(strings.Fields(v.InnerText()), " ")
	}

	var sb strings.Builder
	for n := v.NextSibling; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode && n.Data == "verse" {
			break
		}
		sb.WriteString(n.InnerText())
		sb.WriteByte(' ')
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// osisKey parses "Book.C.V" into a key.
func osisKey(id string) (corpus.Key, error) {
	parts := strings.Split(id, ".")
	if len(parts) < 3 {
		return corpus.Key{}, fmt.Errorf("osisID %q: want Book.Chapter.Verse", id)
	}
	chapter, err1 := strconv.Atoi(parts[len(parts)-2])
	verse, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil || chapter < 1 || verse < 1 {
		return corpus.Key{}, fmt.Errorf("osisID %q: invalid chapter or verse", id)
	}
	return corpus.Key{Chapter: chapter, Verse: verse}, nil
}
