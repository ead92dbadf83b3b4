// Package ledger is the single component that performs raw file I/O on the
// JSONL governance ledgers. Everything else reads through it, and the repair
// manager writes through it.
package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"attestor/internal/domain"
)

// updatableFields is the narrow allow-list for in-place entry updates. The
// repair manager rewrites next_review; the external human-review process
// updates repair entry status. Nothing else is ever mutated in place.
var updatableFields = map[string]bool{
	"next_review": true,
	"status":      true,
}

// LineError reports one malformed ledger line. The line is excluded from the
// parsed set; parsing continues.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

type Store struct {
	root   string
	clock  func() time.Time
	logger *slog.Logger

	// Serializes ledger rewrites. Reads are lock-free full-file snapshots;
	// the design assumes a single writer at a time (see DESIGN.md).
	writeMu sync.Mutex
}

func NewStore(root string) *Store {
	return NewStoreWithClock(root, time.Now)
}

func NewStoreWithClock(root string, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		root:   root,
		clock:  clock,
		logger: slog.Default().With("component", "ledger"),
	}
}

// Path maps a ledger name to its file. The governance ledger keeps its
// legacy ledger/ subdirectory; trust proofs live in their own record files.
func (s *Store) Path(name domain.LedgerName) string {
	switch name {
	case domain.LedgerGovernance:
		return filepath.Join(s.root, "ledger", "ledger.jsonl")
	case domain.LedgerTrustProofs:
		return filepath.Join(s.root, "trust-proofs", "active-proofs.jsonl")
	default:
		return filepath.Join(s.root, string(name), "ledger.jsonl")
	}
}

func (s *Store) activeProofsPath() string {
	return filepath.Join(s.root, "trust-proofs", "active-proofs.jsonl")
}

func (s *Store) revokedProofsPath() string {
	return filepath.Join(s.root, "trust-proofs", "revoked-proofs.jsonl")
}

// Parse reads a ledger file. A missing file is an empty, valid ledger.
// Malformed lines are reported with their line number and excluded; they do
// not abort the parse.
func (s *Store) Parse(name domain.LedgerName) ([]domain.LedgerEntry, []LineError, error) {
	return s.parseFile(s.Path(name))
}

func (s *Store) parseFile(path string) ([]domain.LedgerEntry, []LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	defer f.Close()

	var entries []domain.LedgerEntry
	var lineErrs []LineError

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := decodeEntry([]byte(line))
		if err != nil {
			s.logger.Error("malformed ledger line",
				"path", path, "line", lineNo, "err", err)
			lineErrs = append(lineErrs, LineError{Line: lineNo, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, lineErrs, err
	}
	return entries, lineErrs, nil
}

// VerifyIntegrity parses a ledger and checks that timestamps are
// non-decreasing and every hash matches the 64-hex-char format.
func (s *Store) VerifyIntegrity(name domain.LedgerName) (domain.LedgerParseResult, error) {
	entries, lineErrs, err := s.Parse(name)
	if err != nil {
		return domain.LedgerParseResult{}, err
	}
	if len(entries) == 0 {
		return domain.LedgerParseResult{
			LastUpdate: s.clock().UTC().Format(time.RFC3339),
		}, nil
	}

	chronologyValid := true
	for i := 1; i < len(entries); i++ {
		prev, curr := entries[i-1].Time(), entries[i].Time()
		if !prev.IsZero() && !curr.IsZero() && curr.Before(prev) {
			chronologyValid = false
			break
		}
	}

	hashesValid := true
	for _, entry := range entries {
		if !domain.HashPattern.MatchString(entry.Hash) {
			hashesValid = false
			break
		}
	}

	last := entries[len(entries)-1]
	return domain.LedgerParseResult{
		Entries:      entries,
		TotalEntries: len(entries),
		LastUpdate:   last.Timestamp,
		MerkleRoot:   last.MerkleRoot,
		Verified:     chronologyValid && hashesValid && len(lineErrs) == 0,
	}, nil
}

// EntriesByType filters a parsed ledger; untyped legacy entries count as
// eii-baseline.
func (s *Store) EntriesByType(name domain.LedgerName, entryType domain.EntryType) ([]domain.LedgerEntry, error) {
	entries, _, err := s.Parse(name)
	if err != nil {
		return nil, err
	}
	var out []domain.LedgerEntry
	for _, entry := range entries {
		if entry.Type() == entryType {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) EntriesByDateRange(name domain.LedgerName, start, end time.Time) ([]domain.LedgerEntry, error) {
	entries, _, err := s.Parse(name)
	if err != nil {
		return nil, err
	}
	var out []domain.LedgerEntry
	for _, entry := range entries {
		t := entry.Time()
		if t.IsZero() {
			continue
		}
		if !t.Before(start) && !t.After(end) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// RecentEntries returns the last limit entries, newest first.
func (s *Store) RecentEntries(name domain.LedgerName, limit int) ([]domain.LedgerEntry, error) {
	entries, _, err := s.Parse(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]domain.LedgerEntry, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *Store) Stats(name domain.LedgerName) (domain.LedgerStats, error) {
	entries, _, err := s.Parse(name)
	if err != nil {
		return domain.LedgerStats{}, err
	}
	stats := domain.LedgerStats{
		TotalEntries: len(entries),
		EntryTypes:   make(map[domain.EntryType]int),
	}
	if len(entries) == 0 {
		return stats, nil
	}
	stats.FirstEntry = entries[0].Timestamp
	stats.LastEntry = entries[len(entries)-1].Timestamp

	var eiiValues []float64
	for _, entry := range entries {
		stats.EntryTypes[entry.Type()]++
		if eii, ok := entry.EII(); ok {
			eiiValues = append(eiiValues, eii)
		}
	}
	if len(eiiValues) > 0 {
		sum := 0.0
		for _, v := range eiiValues {
			sum += v
		}
		avg := sum / float64(len(eiiValues))
		sorted := append([]float64(nil), eiiValues...)
		sort.Float64s(sorted)
		minV, maxV := sorted[0], sorted[len(sorted)-1]
		stats.AvgEII = &avg
		stats.MinEII = &minV
		stats.MaxEII = &maxV
	}
	return stats, nil
}

// Append writes one entry as a JSONL line. The entry is serialized with its
// canonical fields first, payload fields after, sorted.
func (s *Store) Append(ctx context.Context, name domain.LedgerName, entry domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return appendLine(s.Path(name), encodeEntry(entry))
}

// AppendRaw writes an already-shaped record (repair entries, proof records).
func (s *Store) AppendRaw(ctx context.Context, name domain.LedgerName, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return appendLine(s.Path(name), raw)
}

// UpdateEntryFields rewrites the ledger with the matching entry's allow-listed
// fields replaced. Returns domain.ErrRepairTarget when no entry matches, and
// refuses any field outside the allow-list.
func (s *Store) UpdateEntryFields(ctx context.Context, name domain.LedgerName, entryID string, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for field := range updates {
		if !updatableFields[field] {
			return fmt.Errorf("field %q is not updatable", field)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	path := s.Path(name)
	entries, lineErrs, err := s.parseFile(path)
	if err != nil {
		return err
	}
	if len(lineErrs) > 0 {
		return fmt.Errorf("refusing to rewrite %s: %d malformed lines", path, len(lineErrs))
	}

	updated := false
	for i := range entries {
		if entries[i].Identifier() != entryID {
			continue
		}
		updated = true
		for field, value := range updates {
			if entries[i].Extra == nil {
				entries[i].Extra = make(map[string]any)
			}
			entries[i].Extra[field] = value
		}
	}
	if !updated {
		return fmt.Errorf("%w: %s in %s", domain.ErrRepairTarget, entryID, path)
	}

	var buf strings.Builder
	for _, entry := range entries {
		buf.Write(encodeEntry(entry))
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}

// FindEntry locates an entry by id or entry_id.
func (s *Store) FindEntry(name domain.LedgerName, entryID string) (domain.LedgerEntry, error) {
	entries, _, err := s.Parse(name)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	for _, entry := range entries {
		if entry.Identifier() == entryID {
			return entry, nil
		}
	}
	return domain.LedgerEntry{}, domain.ErrNotFound
}

// ActiveProofs reads the issued-proof records.
func (s *Store) ActiveProofs() ([]domain.ActiveProofRecord, error) {
	var records []domain.ActiveProofRecord
	err := readRecords(s.activeProofsPath(), &records)
	return records, err
}

// RevokedProofs reads the revocation records.
func (s *Store) RevokedProofs() ([]domain.RevokedProofRecord, error) {
	var records []domain.RevokedProofRecord
	err := readRecords(s.revokedProofsPath(), &records)
	return records, err
}

func (s *Store) AppendActiveProof(ctx context.Context, record domain.ActiveProofRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return appendLine(s.activeProofsPath(), raw)
}

func (s *Store) AppendRevokedProof(ctx context.Context, record domain.RevokedProofRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return appendLine(s.revokedProofsPath(), raw)
}

// FileExists reports whether a referenced document or artifact is present.
// Relative paths resolve against the process working directory, matching the
// ledger convention for document references.
func (s *Store) FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func readRecords[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record T
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// Skip unparseable record lines; they are surfaced by the
			// integrity engine, not here.
			continue
		}
		*out = append(*out, record)
	}
	return scanner.Err()
}

func appendLine(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return err
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

var canonicalFields = map[string]bool{
	"id": true, "entry_id": true, "timestamp": true, "entryType": true,
	"hash": true, "merkleRoot": true, "signature": true,
}

func decodeEntry(raw []byte) (domain.LedgerEntry, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %v", domain.ErrMalformedEntry, err)
	}

	entry := domain.LedgerEntry{Extra: make(map[string]any)}
	for key, value := range m {
		if !canonicalFields[key] {
			entry.Extra[key] = value
			continue
		}
		s, _ := value.(string)
		switch key {
		case "id":
			entry.ID = s
		case "entry_id":
			entry.EntryID = s
		case "timestamp":
			entry.Timestamp = s
		case "entryType":
			entry.EntryType = domain.EntryType(s)
		case "hash":
			entry.Hash = s
		case "merkleRoot":
			entry.MerkleRoot = s
		case "signature":
			entry.Signature = s
		}
	}
	return entry, nil
}

func encodeEntry(entry domain.LedgerEntry) []byte {
	m := make(map[string]any, len(entry.Extra)+7)
	for k, v := range entry.Extra {
		m[k] = v
	}
	if entry.ID != "" {
		m["id"] = entry.ID
	}
	if entry.EntryID != "" {
		m["entry_id"] = entry.EntryID
	}
	if entry.Timestamp != "" {
		m["timestamp"] = entry.Timestamp
	}
	if entry.EntryType != "" {
		m["entryType"] = string(entry.EntryType)
	}
	if entry.Hash != "" {
		m["hash"] = entry.Hash
	}
	if entry.MerkleRoot != "" {
		m["merkleRoot"] = entry.MerkleRoot
	}
	if entry.Signature != "" {
		m["signature"] = entry.Signature
	}
	raw, _ := json.Marshal(m)
	return raw
}
