// Package pdf provides document renderer adapters.
package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/ports"
)

// NoopRenderer skips rendering. Deployments that export documents to an
// external invoicing system run with this.
type NoopRenderer struct{}

// NewNoopRenderer creates a renderer that does nothing.
func NewNoopRenderer() *NoopRenderer {
	return &NoopRenderer{}
}

// Render returns an empty path without producing an artifact.
func (r *NoopRenderer) Render(ctx context.Context, d document.Document, entries []document.Entry) (string, error) {
	return "", nil
}

var _ ports.DocumentRenderer = (*NoopRenderer)(nil)

// FileRenderer writes a JSON rendition of the document to a directory. It
// stands in for a real PDF pipeline; the path it returns is stored on the
// document the same way.
type FileRenderer struct {
	dir string
	log zerolog.Logger
}

// NewFileRenderer creates a renderer writing under dir.
func NewFileRenderer(dir string, log zerolog.Logger) *FileRenderer {
	return &FileRenderer{dir: dir, log: log}
}

// Render writes the document and its entries as one JSON file named by
// kind and ID. Re-rendering after a state change overwrites the file.
func (r *FileRenderer) Render(ctx context.Context, d document.Document, entries []document.Entry) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create render dir: %w", err)
	}

	payload := struct {
		Document document.Document `json:"document"`
		Entries  []document.Entry  `json:"entries"`
	}{Document: d, Entries: entries}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.json", d.Kind, d.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}

	r.log.Debug().
		Str("document_id", d.ID).
		Str("kind", string(d.Kind)).
		Str("path", path).
		Msg("rendered document")

	return path, nil
}

var _ ports.DocumentRenderer = (*FileRenderer)(nil)
