package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"partners/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS snapshot (
  slot INTEGER PRIMARY KEY CHECK (slot = 1),
  analysisId TEXT NOT NULL,
  filename TEXT NOT NULL,
  createdAt TEXT NOT NULL,
  totalRecords INTEGER NOT NULL,
  progressJson TEXT NOT NULL,
  savedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshot_records (
  position INTEGER PRIMARY KEY,
  recordId TEXT NOT NULL,
  status TEXT NOT NULL,
  matchedReferenceId INTEGER,
  candidateReferenceId INTEGER,
  similarity REAL,
  reason TEXT NOT NULL,
  fieldsJson TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS intake_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  analysisId TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveSnapshot replaces the cached snapshot in a single transaction, so a
// crash leaves either the old snapshot or the new one.
func (d *DB) SaveSnapshot(snap *internal.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	progressJSON, err := json.Marshal(snap.Progress)
	if err != nil {
		return err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshot_records`); err != nil {
		return err
	}
	if _, err := tx.Exec(`
INSERT INTO snapshot (slot, analysisId, filename, createdAt, totalRecords, progressJson, savedAt)
VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(slot) DO UPDATE SET
  analysisId=excluded.analysisId,
  filename=excluded.filename,
  createdAt=excluded.createdAt,
  totalRecords=excluded.totalRecords,
  progressJson=excluded.progressJson,
  savedAt=CURRENT_TIMESTAMP
`, snap.AnalysisID, snap.Filename, snap.CreatedAt.UTC().Format(time.RFC3339Nano), snap.TotalRecords, string(progressJSON)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO snapshot_records (position, recordId, status, matchedReferenceId, candidateReferenceId, similarity, reason, fieldsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		fieldsJSON, _ := json.Marshal(rec.Fields)
		if _, err := stmt.Exec(i, rec.ID, string(rec.Status), rec.MatchedReferenceID, rec.CandidateReferenceID, rec.SimilarityScore, rec.Reason, string(fieldsJSON)); err != nil {
			return fmt.Errorf("save record %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns nil, nil when nothing is cached.
func (d *DB) LoadSnapshot() (*internal.Snapshot, error) {
	var (
		analysisID, filename, createdAt, progressJSON string
		total                                         int
	)
	err := d.conn.QueryRow(`
SELECT analysisId, filename, createdAt, totalRecords, progressJson FROM snapshot WHERE slot = 1
`).Scan(&analysisID, &filename, &createdAt, &total, &progressJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var progress internal.ProgressSummary
	_ = json.Unmarshal([]byte(progressJSON), &progress)
	created, _ := time.Parse(time.RFC3339Nano, createdAt)

	rows, err := d.conn.Query(`
SELECT recordId, status, matchedReferenceId, candidateReferenceId, similarity, reason, fieldsJson
FROM snapshot_records ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]internal.ResultRecord, 0, total)
	for rows.Next() {
		var (
			rec        internal.ResultRecord
			status     string
			fieldsJSON string
		)
		if err := rows.Scan(&rec.ID, &status, &rec.MatchedReferenceID, &rec.CandidateReferenceID, &rec.SimilarityScore, &rec.Reason, &fieldsJSON); err != nil {
			return nil, err
		}
		rec.Status = internal.Status(status)
		_ = json.Unmarshal([]byte(fieldsJSON), &rec.Fields)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return internal.NewSnapshot(analysisID, filename, created, records, progress), nil
}

func (d *DB) ClearSnapshot() error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshot_records`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshot`); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) UpsertIntakeMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef string) (internal.IntakeMessage, error) {
	_, err := d.conn.Exec(`
INSERT INTO intake_messages (provider, messageId, subject, sender, receivedAt, hash, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, rawRef)
	if err != nil {
		return internal.IntakeMessage{}, err
	}

	row, err := d.GetIntakeMessage(provider, messageID)
	if err != nil {
		return internal.IntakeMessage{}, err
	}
	if row == nil {
		return internal.IntakeMessage{}, errors.New("failed to upsert intake message")
	}
	return *row, nil
}

const intakeColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, analysisId`

func scanIntake(scan func(dest ...any) error) (internal.IntakeMessage, error) {
	var row internal.IntakeMessage
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef, &row.AnalysisID)
	return row, err
}

func (d *DB) GetIntakeMessage(provider, messageID string) (*internal.IntakeMessage, error) {
	row, err := scanIntake(d.conn.QueryRow(`SELECT `+intakeColumns+` FROM intake_messages WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListIntakeByStatus returns up to limit messages oldest first. The limit
// applies after the provider filter; an empty provider matches all.
func (d *DB) ListIntakeByStatus(status, provider string, limit int) ([]internal.IntakeMessage, error) {
	rows, err := d.conn.Query(`SELECT `+intakeColumns+` FROM intake_messages
WHERE status = ? AND (? = '' OR provider = ?)
ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, provider, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.IntakeMessage
	for rows.Next() {
		row, err := scanIntake(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateIntakeStatus(id int, status, analysisID string) error {
	_, err := d.conn.Exec(`UPDATE intake_messages SET status = ?, analysisId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, analysisID, id)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
