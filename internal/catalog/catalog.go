// Package catalog stores document metadata and the embedding model fingerprint
// next to the vector index.
package catalog

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"mnemo/internal/atomicfile"
	"mnemo/internal/domain"
)

// Catalog reads and writes the metadata and fingerprint files of a database folder.
type Catalog struct {
	metadataPath    string
	fingerprintPath string
}

func New(metadataPath, fingerprintPath string) *Catalog {
	return &Catalog{metadataPath: metadataPath, fingerprintPath: fingerprintPath}
}

// DocumentID derives the stable id of a document from its path: the first
// 8 hex chars of md5(path) read as an integer.
func DocumentID(path string) int64 {
	sum := md5.Sum([]byte(path))
	id, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	return id
}

// Exists reports whether both files are present.
func (c *Catalog) Exists() bool {
	return fileExists(c.metadataPath) && fileExists(c.fingerprintPath)
}

// Load returns the stored documents keyed by id. A missing file yields an empty map.
func (c *Catalog) Load() (map[int64]domain.Document, error) {
	data, err := os.ReadFile(c.metadataPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int64]domain.Document{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	docs := map[int64]domain.Document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", c.metadataPath, err)
	}
	return docs, nil
}

// Save writes docs as a JSON object keyed by decimal id.
func (c *Catalog) Save(docs map[int64]domain.Document) error {
	data, err := marshalIndent(docs)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return atomicfile.WriteFile(c.metadataPath, data, 0o644)
}

// IndexedNames returns the file names already present in the metadata.
func (c *Catalog) IndexedNames() (map[string]struct{}, error) {
	docs, err := c.Load()
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		names[d.FileName] = struct{}{}
	}
	return names, nil
}

type fingerprintFile struct {
	Fingerprint string `json:"fingerprint"`
}

// Fingerprint returns the stored fingerprint. ok is false when the file or key is missing.
func (c *Catalog) Fingerprint() (fp string, ok bool, err error) {
	data, err := os.ReadFile(c.fingerprintPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read fingerprint: %w", err)
	}
	var f fingerprintFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", false, fmt.Errorf("decode fingerprint %s: %w", c.fingerprintPath, err)
	}
	return f.Fingerprint, f.Fingerprint != "", nil
}

// SaveFingerprint writes {"fingerprint": fp}.
func (c *Catalog) SaveFingerprint(fp string) error {
	data, err := marshalIndent(fingerprintFile{Fingerprint: fp})
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(c.fingerprintPath, data, 0o644)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
