package parser

import (
	"strings"

	"github.com/insightdelivered/broker-statement-importer/internal/layout"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// PendingBuffer holds the physical lines of the transaction currently being
// assembled.
type PendingBuffer []string

// Step appends line to buf and tries to resolve the joined text. It returns
// the buffer to carry into the next step: empty once a transaction resolves,
// extended otherwise. buf is not modified.
func Step(vocab *layout.Vocabulary, buf PendingBuffer, line, source string) (PendingBuffer, models.ParsedTransaction, bool) {
	next := make(PendingBuffer, len(buf), len(buf)+1)
	copy(next, buf)
	next = append(next, line)

	txn, ok := ParseLine(vocab, strings.Join(next, " "), source)
	if !ok {
		return next, models.ParsedTransaction{}, false
	}
	return nil, txn, true
}

// Reassembler joins physical table lines into logical transaction lines.
// PDF text extraction often wraps one statement row over several lines; the
// reassembler buffers lines until the joined text parses.
//
// A Reassembler belongs to a single extraction pass and is not safe for
// concurrent use. The buffer carries over page boundaries.
type Reassembler struct {
	vocab   *layout.Vocabulary
	source  string
	pending PendingBuffer
}

// NewReassembler returns an empty reassembler for one document.
func NewReassembler(vocab *layout.Vocabulary, source string) *Reassembler {
	return &Reassembler{vocab: vocab, source: source}
}

// Push feeds one data line. On success the buffer is cleared and the
// transaction returned.
func (r *Reassembler) Push(line string) (models.ParsedTransaction, bool) {
	var (
		txn models.ParsedTransaction
		ok  bool
	)
	r.pending, txn, ok = Step(r.vocab, r.pending, line, r.source)
	return txn, ok
}

// Pending returns a copy of the buffered, not yet resolved lines.
func (r *Reassembler) Pending() []string {
	return append([]string(nil), r.pending...)
}

// Flush empties the buffer and returns what was left in it. The caller
// reports these lines as unresolved; they never become transactions.
func (r *Reassembler) Flush() []string {
	left := []string(r.pending)
	r.pending = nil
	return left
}
