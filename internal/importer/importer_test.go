package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/broker-statement-importer/internal/extractor"
	"github.com/insightdelivered/broker-statement-importer/internal/metrics"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

const header = "DATUM TYP BESCHREIBUNG ZAHLUNGSEINGANG ZAHLUNGSAUSGANG SALDO"

// fakeSource serves page text by file name.
type fakeSource map[string][]string

func (f fakeSource) ExtractPages(path string) ([]string, error) {
	pages, ok := f[filepath.Base(path)]
	if !ok {
		return nil, extractor.ErrNoText
	}
	return pages, nil
}

// memStore keeps documents by checksum and transactions by identity hash.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]models.Document
	hashes    map[string]bool
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]models.Document), hashes: make(map[string]bool)}
}

func (s *memStore) RegisterDocument(_ context.Context, source, checksum string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[checksum]; ok {
		return doc, nil
	}
	doc := models.Document{ID: int64(len(s.docs) + 1), Source: source}
	s.docs[checksum] = doc
	return doc, nil
}

func (s *memStore) InsertTransactions(_ context.Context, _ int64, txns []models.ParsedTransaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	n := 0
	for _, t := range txns {
		if !s.hashes[t.IdentityHash] {
			s.hashes[t.IdentityHash] = true
			n++
		}
	}
	return n, nil
}

type recordingSink struct {
	mu      sync.Mutex
	sources []string
}

func (r *recordingSink) Dump(source string, _ []string, _ *models.ExtractionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	return nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		// distinct content so checksums differ
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 "+name), 0o600))
	}
}

func statementPages() fakeSource {
	return fakeSource{
		"a.pdf": {header + `
01.02.2024 Kauf Example AG DE0001234567 10 0,00 1.234,56 5.000,00
01.03.2024 Verkauf Demo SE DE0009999999 5 2.000,00 0,00 7.000,00`},
		"b.PDF": {header + "\n07.02.2024 Einzahlung 1.000,00 8.000,00"},
		"empty.pdf": {"Werbung\nkeine Tabelle hier"},
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("statement"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Checksum([]byte("statement")))
	assert.NotEqual(t, a, Checksum([]byte("statement2")))
}

func TestImportFile_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf")

	imp := &Importer{Source: statementPages(), Store: newMemStore(), Logger: zerolog.Nop()}

	first, err := imp.ImportFile(context.Background(), filepath.Join(dir, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", first.Source)
	assert.Equal(t, models.StatusOK, first.Status)
	assert.Equal(t, 2, first.Parsed)
	assert.Equal(t, 2, first.Inserted)

	second, err := imp.ImportFile(context.Background(), filepath.Join(dir, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 2, second.Parsed)
	assert.Zero(t, second.Inserted)
}

func TestImportFile_KeepsFirstRecordedSource(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "2024/a.pdf")

	imp := &Importer{Source: statementPages(), Store: newMemStore(), Logger: zerolog.Nop()}

	first, err := imp.ImportFile(context.Background(), filepath.Join(root, "2024", "a.pdf"))
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	// the same bytes seen from a different scan root
	sum, err := imp.ScanFolder(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, sum.Reports, 1)
	assert.Equal(t, "2024/a.pdf", sum.Reports[0].Source)
	assert.Equal(t, first.DocumentID, sum.Reports[0].DocumentID)
	assert.Equal(t, 2, sum.Parsed)
	assert.Zero(t, sum.Inserted)
}

func TestImportFile_StoreFailureCounted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf")

	store := newMemStore()
	store.insertErr = errors.New("connection reset")
	m := metrics.New(prometheus.NewRegistry())
	imp := &Importer{Source: statementPages(), Store: store, Metrics: m, Logger: zerolog.Nop()}

	_, err := imp.ImportFile(context.Background(), filepath.Join(dir, "a.pdf"))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.StatusFailed)))
}

func TestImportFile_Unreadable(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "scan.pdf")

	m := metrics.New(prometheus.NewRegistry())
	imp := &Importer{Source: statementPages(), Store: newMemStore(), Metrics: m, Logger: zerolog.Nop()}

	_, err := imp.ImportFile(context.Background(), filepath.Join(dir, "scan.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreadableDocument))
	assert.True(t, errors.Is(err, extractor.ErrNoText))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues(metrics.StatusFailed)))

	_, err = imp.ImportFile(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.True(t, errors.Is(err, ErrUnreadableDocument))
}

func TestImportFile_DumpsEmptyDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf", "empty.pdf")

	var buf bytes.Buffer
	sink := &recordingSink{}
	imp := &Importer{
		Source: statementPages(),
		Store:  newMemStore(),
		Sink:   sink,
		Logger: zerolog.New(&buf),
	}

	rep, err := imp.ImportFile(context.Background(), filepath.Join(dir, "empty.pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoHeader, rep.Status)

	_, err = imp.ImportFile(context.Background(), filepath.Join(dir, "a.pdf"))
	require.NoError(t, err)

	assert.Equal(t, []string{"empty.pdf"}, sink.sources)
	assert.Contains(t, buf.String(), `"status":"no-header"`)
}

func TestScanFolder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf", "sub/b.PDF", "scan.pdf", "notes.txt")

	store := newMemStore()
	imp := &Importer{Source: statementPages(), Store: store, Workers: 2, Logger: zerolog.Nop()}

	sum, err := imp.ScanFolder(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, sum.Reports, 2)
	assert.Equal(t, 3, sum.Parsed)
	assert.Equal(t, 3, sum.Inserted)
	require.Len(t, sum.Failed, 1)
	assert.Equal(t, "scan.pdf", sum.Failed[0].Source)
	assert.True(t, errors.Is(sum.Failed[0].Err, ErrUnreadableDocument))

	sources := []string{sum.Reports[0].Source, sum.Reports[1].Source}
	assert.ElementsMatch(t, []string{"a.pdf", "sub/b.PDF"}, sources)

	again, err := imp.ScanFolder(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Parsed)
	assert.Zero(t, again.Inserted)
}

func TestScanFolder_MissingDir(t *testing.T) {
	imp := &Importer{Source: statementPages(), Store: newMemStore(), Logger: zerolog.Nop()}
	_, err := imp.ScanFolder(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestScanFolder_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imp := &Importer{Source: statementPages(), Store: newMemStore(), Logger: zerolog.Nop()}
	_, err := imp.ScanFolder(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf")

	store := newMemStore()
	imp := &Importer{Source: statementPages(), Store: store, Logger: zerolog.Nop()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, imp.Watch(ctx, dir, "@every 1h"))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.hashes, 2)
}

func TestWatch_InvalidSchedule(t *testing.T) {
	imp := &Importer{Source: statementPages(), Store: newMemStore(), Logger: zerolog.Nop()}
	err := imp.Watch(context.Background(), t.TempDir(), "every now and then")
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	require.NotEmpty(t, sink.RunID)

	res := &models.ExtractionResult{
		Source:          "sub/empty.pdf",
		Layout:          "de",
		HeaderFound:     true,
		PagesWithHeader: 1,
		Pages:           []models.PageDiagnostic{{Page: 1, HeaderFound: true, HeaderLine: 0, DataLines: 1}},
		UnresolvedLines: []string{"Summe Depot"},
		DebugLines: []models.DebugLine{
			{Page: 1, LineNum: 1, Text: header, Result: models.LineHeader},
			{Page: 1, LineNum: 2, Text: "Summe Depot", Result: models.LineDropped},
		},
	}
	require.NoError(t, sink.Dump("sub/empty.pdf", []string{header + "\nSumme Depot"}, res))

	path := sink.Path("sub/empty.pdf")
	assert.Equal(t, "sub_empty-"+sink.RunID+".txt", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "status: no-resolved-lines")
	assert.Contains(t, out, "===== page 1 (header on line 1, 1 data lines) =====")
	assert.Contains(t, out, "dropped")
	assert.True(t, strings.HasSuffix(out, "Summe Depot\n"))
}
