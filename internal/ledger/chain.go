package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Chain is a hash-chained ledger stored in the ledger_entries table. Each
// entry commits to the previous entry's hash, so rewriting history breaks
// every later link.
type Chain struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewChain returns a ledger backed by db. The schema must already exist.
func NewChain(db *sql.DB) *Chain {
	return &Chain{db: db, now: time.Now}
}

// Entry is one committed ledger record.
type Entry struct {
	Seq        int64      `json:"seq"`
	Hash       string     `json:"hash"`
	PrevHash   string     `json:"prev_hash"`
	RecordedAt string     `json:"recorded_at"`
	Submission Submission `json:"submission"`
}

// Ref returns the settlement reference for the entry.
func (e *Entry) Ref() string {
	return "0x" + e.Hash
}

// Settle appends s to the chain and returns its reference.
func (c *Chain) Settle(ctx context.Context, s Submission) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding submission: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	prev := genesisHash
	err = tx.QueryRowContext(ctx,
		`SELECT seq, hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`,
	).Scan(&seq, &prev)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("reading chain head: %w", err)
	}

	seq++
	recordedAt := c.now().UTC().Format(time.RFC3339Nano)
	hash := chainHash(prev, seq, recordedAt, payload)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (seq, hash, prev_hash, function, item_id, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seq, hash, prev, s.Function, s.ItemID, string(payload), recordedAt,
	)
	if err != nil {
		return "", fmt.Errorf("appending ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing ledger entry: %w", err)
	}

	return "0x" + hash, nil
}

// Lookup returns the entry for a settlement reference, or nil if none exists.
func (c *Chain) Lookup(ctx context.Context, ref string) (*Entry, error) {
	hash := strings.TrimPrefix(ref, "0x")

	e := &Entry{}
	var payload string
	err := c.db.QueryRowContext(ctx,
		`SELECT seq, hash, prev_hash, payload, recorded_at FROM ledger_entries WHERE hash = ?`, hash,
	).Scan(&e.Seq, &e.Hash, &e.PrevHash, &payload, &e.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up ledger entry: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &e.Submission); err != nil {
		return nil, fmt.Errorf("decoding ledger entry %d: %w", e.Seq, err)
	}
	return e, nil
}

// Report is the result of walking the chain.
type Report struct {
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	Head     string `json:"head,omitempty"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Verify recomputes every link and reports the first broken entry.
func (c *Chain) Verify(ctx context.Context) (*Report, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT seq, hash, prev_hash, payload, recorded_at FROM ledger_entries ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer rows.Close()

	report := &Report{Valid: true}
	prev := genesisHash
	var want int64 = 1
	for rows.Next() {
		var seq int64
		var hash, prevHash, payload, recordedAt string
		if err := rows.Scan(&seq, &hash, &prevHash, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		report.Entries++

		if report.Valid {
			switch {
			case seq != want:
				report.Valid, report.BrokenAt, report.Reason = false, seq, fmt.Sprintf("expected seq %d", want)
			case prevHash != prev:
				report.Valid, report.BrokenAt, report.Reason = false, seq, "previous hash mismatch"
			case chainHash(prevHash, seq, recordedAt, []byte(payload)) != hash:
				report.Valid, report.BrokenAt, report.Reason = false, seq, "hash mismatch"
			}
		}

		prev = hash
		want = seq + 1
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if report.Entries > 0 {
		report.Head = "0x" + prev
	}
	return report, nil
}

func chainHash(prev string, seq int64, recordedAt string, payload []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|", prev, seq, recordedAt)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
