package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/decision-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	vendor_key  TEXT NOT NULL,
	account     TEXT NOT NULL,
	count       INTEGER NOT NULL,
	mean        REAL NOT NULL,
	m2          REAL NOT NULL,
	conflicting INTEGER NOT NULL DEFAULT 0,
	first_seen  DATETIME NOT NULL,
	last_seen   DATETIME NOT NULL,
	PRIMARY KEY (vendor_key, account)
);

CREATE TABLE IF NOT EXISTS rule_candidates (
	id                TEXT PRIMARY KEY,
	vendor_key        TEXT NOT NULL,
	suggested_account TEXT NOT NULL,
	evidence          TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	decided_by        TEXT,
	decided_at        DATETIME,
	created_at        DATETIME NOT NULL,
	UNIQUE (vendor_key, suggested_account)
);

CREATE TABLE IF NOT EXISTS rule_versions (
	version_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	rules             TEXT NOT NULL,
	author            TEXT NOT NULL,
	parent_version_id INTEGER NOT NULL DEFAULT 0,
	active            INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blended_decisions (
	id              TEXT PRIMARY KEY,
	txn_id          TEXT NOT NULL,
	vendor_key      TEXT NOT NULL,
	final_account   TEXT NOT NULL,
	blend_score     REAL NOT NULL,
	route           TEXT NOT NULL,
	rule_version_id INTEGER NOT NULL,
	breakdown       TEXT NOT NULL,
	weights         TEXT NOT NULL,
	thresholds      TEXT NOT NULL,
	ts              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS calibration_models (
	id        TEXT PRIMARY KEY,
	method    TEXT NOT NULL,
	payload   TEXT NOT NULL,
	fitted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_snapshots (
	id                TEXT PRIMARY KEY,
	payload           TEXT NOT NULL,
	alert_level       TEXT NOT NULL,
	retrain_triggered INTEGER NOT NULL DEFAULT 0,
	evaluated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	author     TEXT NOT NULL,
	succeeded  INTEGER NOT NULL,
	reason     TEXT,
	details    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON rule_candidates(status);
CREATE INDEX IF NOT EXISTS idx_versions_active ON rule_versions(active);
CREATE INDEX IF NOT EXISTS idx_decisions_txn ON blended_decisions(txn_id);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON blended_decisions(ts);
CREATE INDEX IF NOT EXISTS idx_drift_evaluated ON drift_snapshots(evaluated_at);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Evidence

func (s *SQLiteStore) GetEvidence(ctx context.Context, vendorKey, account string) (*model.EvidenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen
		 FROM evidence_records WHERE vendor_key = ? AND account = ?`,
		vendorKey, account,
	)
	var rec model.EvidenceRecord
	err := row.Scan(&rec.VendorKey, &rec.Account, &rec.Count, &rec.Mean, &rec.M2,
		&rec.Conflicting, &rec.FirstSeen, &rec.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get evidence")
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertEvidence(ctx context.Context, rec *model.EvidenceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence_records (vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (vendor_key, account) DO UPDATE SET
		   count = excluded.count, mean = excluded.mean, m2 = excluded.m2,
		   conflicting = excluded.conflicting, last_seen = excluded.last_seen`,
		rec.VendorKey, rec.Account, rec.Count, rec.Mean, rec.M2,
		rec.Conflicting, rec.FirstSeen, rec.LastSeen,
	)
	return eris.Wrap(err, "sqlite: upsert evidence")
}

func (s *SQLiteStore) ListVendorEvidence(ctx context.Context, vendorKey string) ([]model.EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen
		 FROM evidence_records WHERE vendor_key = ? ORDER BY count DESC`,
		vendorKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendor evidence")
	}
	defer rows.Close()

	var recs []model.EvidenceRecord
	for rows.Next() {
		var rec model.EvidenceRecord
		if err := rows.Scan(&rec.VendorKey, &rec.Account, &rec.Count, &rec.Mean, &rec.M2,
			&rec.Conflicting, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list vendor evidence iterate")
}

func (s *SQLiteStore) SetVendorConflicting(ctx context.Context, vendorKey string, conflicting bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evidence_records SET conflicting = ? WHERE vendor_key = ?`,
		conflicting, vendorKey,
	)
	return eris.Wrap(err, "sqlite: set vendor conflicting")
}

// Candidates

func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *model.RuleCandidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	evJSON, err := json.Marshal(c.Evidence)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rule_candidates (id, vendor_key, suggested_account, evidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.VendorKey, c.SuggestedAccount, string(evJSON), string(c.Status), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert candidate")
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*model.RuleCandidate, error) {
	row := s.db.QueryRowContext(ctx, candidateSelect+` WHERE id = ?`, id)
	return scanCandidate(row)
}

func (s *SQLiteStore) FindCandidate(ctx context.Context, vendorKey, account string) (*model.RuleCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		candidateSelect+` WHERE vendor_key = ? AND suggested_account = ?`,
		vendorKey, account,
	)
	c, err := scanCandidate(row)
	if err != nil && eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, status model.CandidateStatus) ([]model.RuleCandidate, error) {
	query := candidateSelect
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var cands []model.RuleCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		cands = append(cands, *c)
	}
	return cands, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) UpdateCandidateStatus(ctx context.Context, id string, status model.CandidateStatus, decidedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rule_candidates SET status = ?, decided_by = ?, decided_at = ? WHERE id = ?`,
		string(status), decidedBy, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

func (s *SQLiteStore) UpdateCandidateEvidence(ctx context.Context, id string, ev model.EvidenceRecord) error {
	evJSON, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rule_candidates SET evidence = ? WHERE id = ?`,
		string(evJSON), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate evidence %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

func (s *SQLiteStore) CountCandidates(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_candidates`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count candidates")
}

// Versions

func (s *SQLiteStore) GetActiveVersion(ctx context.Context) (*model.RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, versionSelect+` WHERE active = 1`)
	return scanVersion(row)
}

func (s *SQLiteStore) GetVersion(ctx context.Context, versionID int64) (*model.RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, versionSelect+` WHERE version_id = ?`, versionID)
	return scanVersion(row)
}

func (s *SQLiteStore) ListVersions(ctx context.Context) ([]model.RuleVersion, error) {
	rows, err := s.db.QueryContext(ctx, versionSelect+` ORDER BY version_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list versions")
	}
	defer rows.Close()

	var versions []model.RuleVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

// InsertVersion atomically deactivates the current active version and
// inserts v as the new active one. If the active version is not
// v.ParentVersionID the transaction aborts with ErrStaleVersion.
func (s *SQLiteStore) InsertVersion(ctx context.Context, v *model.RuleVersion) (*model.RuleVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert version")
	}
	defer tx.Rollback() //nolint:errcheck

	var activeID int64
	err = tx.QueryRowContext(ctx, `SELECT version_id FROM rule_versions WHERE active = 1`).Scan(&activeID)
	switch {
	case err == sql.ErrNoRows:
		activeID = 0
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: read active version")
	}
	if activeID != v.ParentVersionID {
		return nil, eris.Wrapf(ErrStaleVersion, "active is v%d, parent is v%d", activeID, v.ParentVersionID)
	}

	if activeID != 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE rule_versions SET active = 0 WHERE version_id = ?`, activeID); err != nil {
			return nil, eris.Wrap(err, "sqlite: deactivate version")
		}
	}

	rulesJSON, err := json.Marshal(v.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal rules")
	}
	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO rule_versions (rules, author, parent_version_id, active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		string(rulesJSON), v.Author, v.ParentVersionID, createdAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert version")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: version id")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert version")
	}

	out := *v
	out.VersionID = id
	out.Active = true
	out.CreatedAt = createdAt
	return &out, nil
}

func (s *SQLiteStore) CountVersions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_versions`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count versions")
}

// Decisions

func (s *SQLiteStore) CreateDecision(ctx context.Context, d *model.BlendedDecision) error {
	breakdown, err := json.Marshal(d.SignalBreakdown)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal breakdown")
	}
	weights, err := json.Marshal(d.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}
	thresholds, err := json.Marshal(d.Thresholds)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal thresholds")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blended_decisions
		 (id, txn_id, vendor_key, final_account, blend_score, route, rule_version_id, breakdown, weights, thresholds, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), d.TxnID, d.VendorKey, d.FinalAccount, d.BlendScore,
		string(d.Route), d.RuleVersionID, string(breakdown), string(weights), string(thresholds), d.Timestamp,
	)
	return eris.Wrap(err, "sqlite: insert decision")
}

func (s *SQLiteStore) GetDecision(ctx context.Context, txnID string) (*model.BlendedDecision, error) {
	row := s.db.QueryRowContext(ctx,
		decisionSelect+` WHERE txn_id = ? ORDER BY ts DESC LIMIT 1`, txnID)
	return scanDecision(row)
}

func (s *SQLiteStore) ListRecentDecisions(ctx context.Context, limit int) ([]model.BlendedDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, decisionSelect+` ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var ds []model.BlendedDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		ds = append(ds, *d)
	}
	return ds, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

// Calibration

func (s *SQLiteStore) SaveCalibrationModel(ctx context.Context, m *model.CalibrationModel) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal calibration model")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calibration_models (id, method, payload, fitted_at) VALUES (?, ?, ?, ?)`,
		m.ID, string(m.Method), string(payload), m.FittedAt,
	)
	return eris.Wrap(err, "sqlite: insert calibration model")
}

func (s *SQLiteStore) LatestCalibrationModel(ctx context.Context) (*model.CalibrationModel, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM calibration_models ORDER BY fitted_at DESC, id DESC LIMIT 1`,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest calibration model")
	}
	var m model.CalibrationModel
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal calibration model")
	}
	return &m, nil
}

// Drift

func (s *SQLiteStore) SaveDriftSnapshot(ctx context.Context, snap *model.DriftSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal drift snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drift_snapshots (id, payload, alert_level, retrain_triggered, evaluated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, string(payload), string(snap.AlertLevel), snap.RetrainTriggered, snap.EvaluatedAt,
	)
	return eris.Wrap(err, "sqlite: insert drift snapshot")
}

func (s *SQLiteStore) ListDriftSnapshots(ctx context.Context, limit int) ([]model.DriftSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM drift_snapshots ORDER BY evaluated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drift snapshots")
	}
	defer rows.Close()

	var snaps []model.DriftSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan drift snapshot")
		}
		var snap model.DriftSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal drift snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list drift snapshots iterate")
}

func (s *SQLiteStore) LastRetrainTrigger(ctx context.Context) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT evaluated_at FROM drift_snapshots WHERE retrain_triggered = 1
		 ORDER BY evaluated_at DESC LIMIT 1`,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last retrain trigger")
	}
	return &ts, nil
}

// Audit

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit details")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, author, succeeded, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Author, e.Succeeded, e.Reason, string(details), e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert audit entry")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, author, succeeded, reason, details, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var reason sql.NullString
		var details string
		if err := rows.Scan(&e.ID, &e.Action, &e.Author, &e.Succeeded, &reason, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		e.Reason = reason.String
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// helpers

const (
	candidateSelect = `SELECT id, vendor_key, suggested_account, evidence, status, decided_by, decided_at, created_at FROM rule_candidates`
	versionSelect   = `SELECT version_id, rules, author, parent_version_id, active, created_at FROM rule_versions`
	decisionSelect  = `SELECT txn_id, vendor_key, final_account, blend_score, route, rule_version_id, breakdown, weights, thresholds, ts FROM blended_decisions`
)

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCandidate(row scannable) (*model.RuleCandidate, error) {
	var c model.RuleCandidate
	var evJSON string
	var decidedBy sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&c.ID, &c.VendorKey, &c.SuggestedAccount, &evJSON, &c.Status, &decidedBy, &decidedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "candidate")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan candidate")
	}
	if err := json.Unmarshal([]byte(evJSON), &c.Evidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal candidate evidence")
	}
	c.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		t := decidedAt.Time
		c.DecidedAt = &t
	}
	return &c, nil
}

func scanVersion(row scannable) (*model.RuleVersion, error) {
	var v model.RuleVersion
	var rulesJSON string

	err := row.Scan(&v.VersionID, &rulesJSON, &v.Author, &v.ParentVersionID, &v.Active, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "rule version")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan version")
	}
	if err := json.Unmarshal([]byte(rulesJSON), &v.Rules); err != nil {
		return nil, eris.Wrap(err, "unmarshal version rules")
	}
	return &v, nil
}

func scanDecision(row scannable) (*model.BlendedDecision, error) {
	var d model.BlendedDecision
	var breakdown, weights, thresholds string

	err := row.Scan(&d.TxnID, &d.VendorKey, &d.FinalAccount, &d.BlendScore, &d.Route,
		&d.RuleVersionID, &breakdown, &weights, &thresholds, &d.Timestamp)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "decision")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan decision")
	}
	if err := json.Unmarshal([]byte(breakdown), &d.SignalBreakdown); err != nil {
		return nil, eris.Wrap(err, "unmarshal decision breakdown")
	}
	if err := json.Unmarshal([]byte(weights), &d.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal decision weights")
	}
	if err := json.Unmarshal([]byte(thresholds), &d.Thresholds); err != nil {
		return nil, eris.Wrap(err, "unmarshal decision thresholds")
	}
	return &d, nil
}
