package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uralstat/realty-cli/internal/config"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/store"
)

// Format selects the snapshot file layout.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatDataset Format = "dataset"
)

// Options controls one export pass.
type Options struct {
	Format   Format
	District string // restrict the snapshot to one district
	RunID    string // restrict the snapshot to one run
	Upload   bool   // also push the file to the FTP drop
}

// Result describes the produced snapshot.
type Result struct {
	Path string // local file
	Key  string // remote key, set when uploaded
	Rows int
}

// Exporter builds snapshot files from the store.
type Exporter struct {
	store store.Store
	cfg   config.ExportConfig
	now   func() time.Time
}

// New creates an Exporter.
func New(st store.Store, cfg config.ExportConfig) *Exporter {
	return &Exporter{store: st, cfg: cfg, now: time.Now}
}

// Run queries listings, writes the snapshot file, and optionally uploads it.
func (e *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}

	recs, err := e.store.ListListings(ctx, store.ListingFilter{
		District: opts.District,
		RunID:    opts.RunID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: load listings")
	}

	taken := e.now().UTC()
	filename := snapshotFilename(opts.Format, taken)

	outDir := e.cfg.OutDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create out dir %s", outDir)
	}
	outPath := filepath.Join(outDir, filename)

	rows, err := e.writeFile(outPath, opts.Format, recs)
	if err != nil {
		return nil, err
	}

	result := &Result{Path: outPath, Rows: rows}
	zap.L().Info("export: snapshot written",
		zap.String("path", outPath),
		zap.Int("rows", rows),
		zap.String("format", string(opts.Format)),
	)

	if opts.Upload {
		key := SnapshotKey(e.cfg.KeyPrefix, taken, filename)
		f, err := os.Open(outPath)
		if err != nil {
			return nil, eris.Wrap(err, "export: reopen snapshot")
		}
		defer f.Close() //nolint:errcheck

		up := NewUploader(UploaderOptions{
			URL:      e.cfg.FTPURL,
			User:     e.cfg.FTPUser,
			Password: e.cfg.FTPPass,
		})
		if err := up.Upload(ctx, key, f); err != nil {
			return nil, err
		}
		result.Key = key
	}

	return result, nil
}

func (e *Exporter) writeFile(path string, format Format, recs []model.ListingRecord) (int, error) {
	switch format {
	case FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrapf(err, "export: create %s", path)
		}
		defer f.Close() //nolint:errcheck
		if err := WriteCSV(f, recs); err != nil {
			return 0, err
		}
		return len(recs), f.Close()

	case FormatXLSX:
		return len(recs), WriteXLSX(path, recs)

	case FormatDataset:
		f, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrapf(err, "export: create %s", path)
		}
		defer f.Close() //nolint:errcheck
		n, err := WriteDataset(f, recs)
		if err != nil {
			return 0, err
		}
		return n, f.Close()

	default:
		return 0, eris.Errorf("export: unknown format %q", format)
	}
}

func snapshotFilename(format Format, taken time.Time) string {
	stamp := taken.Format("20060102T150405")
	switch format {
	case FormatXLSX:
		return fmt.Sprintf("listings_%s.xlsx", stamp)
	case FormatDataset:
		return fmt.Sprintf("dataset_%s.csv", stamp)
	default:
		return fmt.Sprintf("listings_%s.csv", stamp)
	}
}
