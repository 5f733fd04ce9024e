package importer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Failure is a document that could not be imported.
type Failure struct {
	Source string
	Err    error
}

// Summary totals one folder scan.
type Summary struct {
	Reports  []Report
	Failed   []Failure
	Parsed   int
	Inserted int
}

// ScanFolder imports every PDF below dir, up to Workers at a time. A failing
// document is recorded in Summary.Failed and does not stop the others. The
// returned error is only set when the folder itself cannot be walked or ctx
// is cancelled.
func (i *Importer) ScanFolder(ctx context.Context, dir string) (Summary, error) {
	paths, err := findPDFs(dir)
	if err != nil {
		return Summary{}, err
	}

	type outcome struct {
		report Report
		err    error
	}
	outcomes := make([]outcome, len(paths))

	workers := i.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				rel = path
			}
			rep, err := i.importDocument(gctx, path, filepath.ToSlash(rel))
			outcomes[idx] = outcome{report: rep, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, o := range outcomes {
		if o.err != nil {
			i.Logger.Error().Err(o.err).Str("document", o.report.Source).Msg("failed to import document")
			sum.Failed = append(sum.Failed, Failure{Source: o.report.Source, Err: o.err})
			continue
		}
		sum.Reports = append(sum.Reports, o.report)
		sum.Parsed += o.report.Parsed
		sum.Inserted += o.report.Inserted
	}

	i.Logger.Info().
		Str("folder", dir).
		Int("documents", len(paths)).
		Int("failed", len(sum.Failed)).
		Int("parsed", sum.Parsed).
		Int("inserted", sum.Inserted).
		Msg("scan complete")

	return sum, nil
}

// findPDFs returns all *.pdf files below dir in lexical order.
func findPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return paths, nil
}
