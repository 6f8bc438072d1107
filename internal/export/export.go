// Package export encodes cards as downloadable JSON and writes them to an
// output directory.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/cardsmith/internal/card"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Encode renders c as indented JSON with a trailing newline.
func Encode(c *card.Card) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("export: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName returns "<actionCardId>.json", or "row-<n>.json" (1-based) when
// the card has no usable ID.
func FileName(c *card.Card, index int) string {
	name := strings.Trim(unsafeName.ReplaceAllString(c.ActionCardID, "_"), "._")
	if name == "" {
		name = "row-" + strconv.Itoa(index+1)
	}
	return name + ".json"
}

// Dir writes files under a root directory.
type Dir struct {
	root string
}

// NewDir creates root if needed and returns a writer for it.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("export: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("export: mkdir: %w", err)
	}
	return &Dir{root: abs}, nil
}

// safePath resolves name against the root and rejects any result that
// escapes it.
func (d *Dir) safePath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("export: invalid file name: %s", name)
	}
	abs := filepath.Join(d.root, cleaned)
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("export: path escapes output dir: %s", name)
	}
	return abs, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (d *Dir) Write(name string, content []byte) (string, error) {
	abs, err := d.safePath(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.root, ".cardsmith-tmp-*")
	if err != nil {
		return "", fmt.Errorf("export: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("export: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("export: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("export: rename: %w", err)
	}
	success = true
	return abs, nil
}

// WriteCards writes every card to its own file and returns the paths.
// Repeated IDs get a "-<n>" suffix so no file is overwritten.
func (d *Dir) WriteCards(cards []*card.Card) ([]string, error) {
	seen := make(map[string]int, len(cards))
	paths := make([]string, 0, len(cards))
	for i, c := range cards {
		data, err := Encode(c)
		if err != nil {
			return paths, err
		}
		name := FileName(c, i)
		if seen[name] > 0 {
			base := strings.TrimSuffix(name, ".json")
			for n := seen[name] + 1; ; n++ {
				candidate := base + "-" + strconv.Itoa(n) + ".json"
				if seen[candidate] == 0 {
					seen[name] = n
					name = candidate
					break
				}
			}
		}
		seen[name]++
		p, err := d.Write(name, data)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
