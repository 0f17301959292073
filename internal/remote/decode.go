package remote

import (
	"encoding/json"
	"fmt"
	"io"
)

// decodeEntries はIDをキーとするJSONオブジェクトを、キーの出現順を保ったまま
// Entryのスライスへ変換する。nullは空スライスとして扱う。
func decodeEntries(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return []Entry{}, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	entries := []Entry{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s: %w", key, err)
		}
		entries = append(entries, Entry{ID: key, Data: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}
