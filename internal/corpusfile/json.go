package corpusfile

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
)

// ReadJSON decodes {"<translation>": {"C:V": "text"}}.
func ReadJSON(r io.Reader) (*corpus.Corpus, error) {
	var data map[string]map[string]string
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode json corpus: %w", err)
	}
	return corpus.New(data)
}

// WriteJSON encodes c in the layout ReadJSON accepts.
func WriteJSON(w io.Writer, c *corpus.Corpus) error {
	data := make(map[string]map[string]string)
	err := c.Each(func(translation string, key corpus.Key, text string) error {
		if data[translation] == nil {
			data[translation] = make(map[string]string)
		}
		data[translation][key.String()] = text
		return nil
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
