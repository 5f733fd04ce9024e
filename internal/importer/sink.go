package importer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// FileSink writes one text file per document into Dir, named
// <source>-<run id>.txt, holding the raw page text followed by what the
// parser did with every line.
type FileSink struct {
	Dir   string
	RunID string
}

// NewFileSink creates dir if needed and starts a new run.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug dir: %w", err)
	}
	return &FileSink{Dir: dir, RunID: uuid.NewString()}, nil
}

// Path returns the dump file path for source.
func (s *FileSink) Path(source string) string {
	base := strings.TrimSuffix(filepath.ToSlash(source), filepath.Ext(source))
	base = strings.NewReplacer("/", "_", " ", "_").Replace(base)
	return filepath.Join(s.Dir, base+"-"+s.RunID+".txt")
}

// Dump implements DebugSink.
func (s *FileSink) Dump(source string, pages []string, res *models.ExtractionResult) error {
	f, err := os.Create(s.Path(source))
	if err != nil {
		return fmt.Errorf("failed to create debug file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "source: %s\nlayout: %s\nstatus: %s\n", source, res.Layout, res.Status())
	fmt.Fprintf(w, "pages with header: %d, without: %d\n", res.PagesWithHeader, res.PagesWithoutHeader)

	for idx, page := range pages {
		fmt.Fprintf(w, "\n===== page %d", idx+1)
		if idx < len(res.Pages) && res.Pages[idx].HeaderFound {
			fmt.Fprintf(w, " (header on line %d, %d data lines)", res.Pages[idx].HeaderLine+1, res.Pages[idx].DataLines)
		} else {
			fmt.Fprint(w, " (no header)")
		}
		fmt.Fprintf(w, " =====\n%s\n", page)
	}

	fmt.Fprint(w, "\n===== lines =====\n")
	for _, dl := range res.DebugLines {
		fmt.Fprintf(w, "p%d l%-3d %-18s | %s\n", dl.Page, dl.LineNum, dl.Result, dl.Text)
	}

	if len(res.UnresolvedLines) > 0 {
		fmt.Fprint(w, "\n===== unresolved =====\n")
		for _, line := range res.UnresolvedLines {
			fmt.Fprintln(w, line)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write debug file: %w", err)
	}
	return f.Close()
}
