// Package export renders snapshots into the three output formats: the text
// exposition format for scrapers, an indented JSON document for tooling, and
// CSV for spreadsheets. Rendering is read-only over an immutable snapshot and
// never triggers collection.
package export

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// Format selects an output renderer.
type Format string

const (
	FormatExposition Format = "exposition"
	FormatJSON       Format = "json"
	FormatCSV        Format = "csv"
)

// ParseFormat resolves a format name or alias. Unknown names yield
// ErrExportFormat.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exposition", "prometheus":
		return FormatExposition, nil
	case "json", "structured":
		return FormatJSON, nil
	case "csv", "tabular":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", monerrors.ErrExportFormat, s)
	}
}

// ContentType returns the HTTP Content-Type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return ExpositionContentType
	}
}

// Render writes the snapshot in the given format.
func Render(w io.Writer, format Format, snap *model.Snapshot) error {
	switch format {
	case FormatExposition:
		return RenderExposition(w, snap)
	case FormatJSON:
		return RenderJSON(w, snap)
	case FormatCSV:
		return RenderCSV(w, snap)
	default:
		return fmt.Errorf("%w: %q", monerrors.ErrExportFormat, format)
	}
}

// WriteFile renders the snapshot to a file, replacing any existing content.
// A path ending in .zst is zstd-compressed.
func WriteFile(path string, format Format, snap *model.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("init zstd writer: %w", err)
		}
		w = enc
	}

	if err := Render(w, format, snap); err != nil {
		if enc != nil {
			enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush zstd writer: %w", err)
		}
	}
	return f.Close()
}
