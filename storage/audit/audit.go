// Package audit archives host log records in SQLite so settlements can be
// traced after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"mpcbridge/core/events"
)

// ErrPathRequired is returned when the archive path is missing.
var ErrPathRequired = errors.New("audit: storage path must be configured")

// Entry is one archived log record.
type Entry struct {
	ID         int64             `json:"id"`
	TxID       string            `json:"txId"`
	ReceiptID  string            `json:"receiptId"`
	Contract   string            `json:"contract"`
	Type       string            `json:"type"`
	State      string            `json:"state,omitempty"`
	BridgeTx   string            `json:"bridgeTx,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Archive is an events.Emitter backed by SQLite.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open initialises the archive using a sqlite-compatible DSN.
func Open(dsn string, logger *slog.Logger) (*Archive, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger, now: time.Now}, nil
}

// Close releases database resources.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Emit archives host log records. Failures are logged and otherwise ignored;
// the record has already been committed by the host.
func (a *Archive) Emit(evt events.Event) {
	log, ok := evt.(events.Log)
	if !ok {
		return
	}
	if err := a.Record(context.Background(), log); err != nil {
		a.logger.Error("audit: archive record", "tx", log.TxID, "type", log.Record.Type, "error", err)
	}
}

// Record stores a single log record.
func (a *Archive) Record(ctx context.Context, log events.Log) error {
	if a == nil || a.db == nil {
		return fmt.Errorf("audit: archive not configured")
	}
	attrs := log.Record.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
        INSERT INTO records(tx_id, receipt_id, contract, type, state, bridge_tx, attributes, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
    `, log.TxID, log.ReceiptID, log.Contract, log.Record.Type, attrs["state"], attrs["txId"], string(encoded), a.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ByTx returns every record of a submission, matching either the host
// submission id or the bridge transaction id, oldest first.
func (a *Archive) ByTx(ctx context.Context, txID string) ([]Entry, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return nil, fmt.Errorf("audit: tx id required")
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, tx_id, receipt_id, contract, type, state, bridge_tx, attributes, recorded_at
        FROM records WHERE tx_id = ? OR bridge_tx = ? ORDER BY id ASC
    `, txID, txID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanEntries(rows)
}

// Recent returns up to limit records, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, tx_id, receipt_id, contract, type, state, bridge_tx, attributes, recorded_at
        FROM records ORDER BY id DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			entry    Entry
			state    sql.NullString
			bridgeTx sql.NullString
			attrs    string
			recorded int64
		)
		if err := rows.Scan(&entry.ID, &entry.TxID, &entry.ReceiptID, &entry.Contract, &entry.Type, &state, &bridgeTx, &attrs, &recorded); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		entry.State = state.String
		entry.BridgeTx = bridgeTx.String
		entry.RecordedAt = time.Unix(0, recorded).UTC()
		if err := json.Unmarshal([]byte(attrs), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tx_id TEXT NOT NULL,
    receipt_id TEXT NOT NULL,
    contract TEXT NOT NULL,
    type TEXT NOT NULL,
    state TEXT,
    bridge_tx TEXT,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_tx ON records(tx_id);
CREATE INDEX IF NOT EXISTS idx_records_bridge_tx ON records(bridge_tx);
`
