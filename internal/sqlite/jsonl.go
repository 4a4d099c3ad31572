// JSONL export and import of the kv table, with atomic persistence.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// record is one kv row as written to a JSONL export.
type record struct {
	Key       string          `json:"key"`
	Kind      string          `json:"kind"`
	Value     json.RawMessage `json:"value"`
	Version   int64           `json:"version,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// Export writes every entry to path as JSONL, one record per line in key
// order. Returns the number of records written.
func (b *Backend) Export(path string) (int, error) {
	records, err := b.records()
	if err != nil {
		return 0, err
	}

	lines := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("encoding %q: %w", r.Key, err)
		}
		lines = append(lines, line)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Import reads a JSONL export and writes each record through Set, so peers
// attached to the same data directory see the imported keys as external
// changes. Malformed lines are skipped. Returns the number of records
// imported.
func (b *Backend) Import(path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, line := range lines {
		var r record
		if err := json.Unmarshal(line, &r); err != nil || r.Key == "" {
			b.logger.Debug("skipping malformed record", "path", path)
			continue
		}
		v, err := decodeValue(r.Kind, string(r.Value))
		if err != nil {
			b.logger.Debug("skipping undecodable record", "key", r.Key, "error", err)
			continue
		}
		if err := b.Set(r.Key, v); err != nil {
			return n, fmt.Errorf("importing %q: %w", r.Key, err)
		}
		n++
	}
	return n, nil
}

// readJSONL returns each non-empty, parseable line of path. Malformed lines
// are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		lines = append(lines, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return lines, nil
}

// writeJSONL writes lines to path through a temp file that is synced and
// renamed into place.
func writeJSONL(path string, lines []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err = w.Write(line); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err = w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
