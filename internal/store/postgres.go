package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/db"
	"github.com/sells-group/decision-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	vendor_key  TEXT NOT NULL,
	account     TEXT NOT NULL,
	count       BIGINT NOT NULL,
	mean        DOUBLE PRECISION NOT NULL,
	m2          DOUBLE PRECISION NOT NULL,
	conflicting BOOLEAN NOT NULL DEFAULT FALSE,
	first_seen  TIMESTAMPTZ NOT NULL,
	last_seen   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (vendor_key, account)
);

CREATE TABLE IF NOT EXISTS rule_candidates (
	id                TEXT PRIMARY KEY,
	vendor_key        TEXT NOT NULL,
	suggested_account TEXT NOT NULL,
	evidence          JSONB NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	decided_by        TEXT,
	decided_at        TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (vendor_key, suggested_account)
);

CREATE TABLE IF NOT EXISTS rule_versions (
	version_id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	rules             JSONB NOT NULL,
	author            TEXT NOT NULL,
	parent_version_id BIGINT NOT NULL DEFAULT 0,
	active            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_one_active
	ON rule_versions(active) WHERE active;

CREATE TABLE IF NOT EXISTS blended_decisions (
	id              TEXT PRIMARY KEY,
	txn_id          TEXT NOT NULL,
	vendor_key      TEXT NOT NULL,
	final_account   TEXT NOT NULL,
	blend_score     DOUBLE PRECISION NOT NULL,
	route           TEXT NOT NULL,
	rule_version_id BIGINT NOT NULL,
	breakdown       JSONB NOT NULL,
	weights         JSONB NOT NULL,
	thresholds      JSONB NOT NULL,
	ts              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS calibration_models (
	id        TEXT PRIMARY KEY,
	method    TEXT NOT NULL,
	payload   JSONB NOT NULL,
	fitted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_snapshots (
	id                TEXT PRIMARY KEY,
	payload           JSONB NOT NULL,
	alert_level       TEXT NOT NULL,
	retrain_triggered BOOLEAN NOT NULL DEFAULT FALSE,
	evaluated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	author     TEXT NOT NULL,
	succeeded  BOOLEAN NOT NULL,
	reason     TEXT,
	details    JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON rule_candidates(status);
CREATE INDEX IF NOT EXISTS idx_decisions_txn ON blended_decisions(txn_id);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON blended_decisions(ts);
CREATE INDEX IF NOT EXISTS idx_drift_evaluated ON drift_snapshots(evaluated_at);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Evidence

func (s *PostgresStore) GetEvidence(ctx context.Context, vendorKey, account string) (*model.EvidenceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen
		 FROM evidence_records WHERE vendor_key = $1 AND account = $2`,
		vendorKey, account,
	)
	var rec model.EvidenceRecord
	err := row.Scan(&rec.VendorKey, &rec.Account, &rec.Count, &rec.Mean, &rec.M2,
		&rec.Conflicting, &rec.FirstSeen, &rec.LastSeen)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get evidence")
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertEvidence(ctx context.Context, rec *model.EvidenceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evidence_records (vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (vendor_key, account) DO UPDATE SET
		   count = EXCLUDED.count, mean = EXCLUDED.mean, m2 = EXCLUDED.m2,
		   conflicting = EXCLUDED.conflicting, last_seen = EXCLUDED.last_seen`,
		rec.VendorKey, rec.Account, rec.Count, rec.Mean, rec.M2,
		rec.Conflicting, rec.FirstSeen, rec.LastSeen,
	)
	return eris.Wrap(err, "postgres: upsert evidence")
}

func (s *PostgresStore) ListVendorEvidence(ctx context.Context, vendorKey string) ([]model.EvidenceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen
		 FROM evidence_records WHERE vendor_key = $1 ORDER BY count DESC`,
		vendorKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendor evidence")
	}
	defer rows.Close()

	var recs []model.EvidenceRecord
	for rows.Next() {
		var rec model.EvidenceRecord
		if err := rows.Scan(&rec.VendorKey, &rec.Account, &rec.Count, &rec.Mean, &rec.M2,
			&rec.Conflicting, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list vendor evidence iterate")
}

func (s *PostgresStore) SetVendorConflicting(ctx context.Context, vendorKey string, conflicting bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE evidence_records SET conflicting = $1 WHERE vendor_key = $2`,
		conflicting, vendorKey,
	)
	return eris.Wrap(err, "postgres: set vendor conflicting")
}

// Candidates

const pgCandidateSelect = `SELECT id, vendor_key, suggested_account, evidence, status, decided_by, decided_at, created_at FROM rule_candidates`

func (s *PostgresStore) CreateCandidate(ctx context.Context, c *model.RuleCandidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	evJSON, err := json.Marshal(c.Evidence)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rule_candidates (id, vendor_key, suggested_account, evidence, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.VendorKey, c.SuggestedAccount, evJSON, string(c.Status), c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert candidate")
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.RuleCandidate, error) {
	row := s.pool.QueryRow(ctx, pgCandidateSelect+` WHERE id = $1`, id)
	return scanPgCandidate(row)
}

func (s *PostgresStore) FindCandidate(ctx context.Context, vendorKey, account string) (*model.RuleCandidate, error) {
	row := s.pool.QueryRow(ctx,
		pgCandidateSelect+` WHERE vendor_key = $1 AND suggested_account = $2`,
		vendorKey, account,
	)
	c, err := scanPgCandidate(row)
	if err != nil && eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) ListCandidates(ctx context.Context, status model.CandidateStatus) ([]model.RuleCandidate, error) {
	query := pgCandidateSelect
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var cands []model.RuleCandidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, err
		}
		cands = append(cands, *c)
	}
	return cands, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) UpdateCandidateStatus(ctx context.Context, id string, status model.CandidateStatus, decidedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rule_candidates SET status = $1, decided_by = $2, decided_at = $3 WHERE id = $4`,
		string(status), decidedBy, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateCandidateEvidence(ctx context.Context, id string, ev model.EvidenceRecord) error {
	evJSON, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE rule_candidates SET evidence = $1 WHERE id = $2`, evJSON, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate evidence %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return nil
}

func (s *PostgresStore) CountCandidates(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rule_candidates`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count candidates")
}

// Versions

const pgVersionSelect = `SELECT version_id, rules, author, parent_version_id, active, created_at FROM rule_versions`

func (s *PostgresStore) GetActiveVersion(ctx context.Context) (*model.RuleVersion, error) {
	row := s.pool.QueryRow(ctx, pgVersionSelect+` WHERE active`)
	return scanPgVersion(row)
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID int64) (*model.RuleVersion, error) {
	row := s.pool.QueryRow(ctx, pgVersionSelect+` WHERE version_id = $1`, versionID)
	return scanPgVersion(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context) ([]model.RuleVersion, error) {
	rows, err := s.pool.Query(ctx, pgVersionSelect+` ORDER BY version_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list versions")
	}
	defer rows.Close()

	var versions []model.RuleVersion
	for rows.Next() {
		v, err := scanPgVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

func (s *PostgresStore) InsertVersion(ctx context.Context, v *model.RuleVersion) (*model.RuleVersion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin insert version")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var activeID int64
	err = tx.QueryRow(ctx, `SELECT version_id FROM rule_versions WHERE active FOR UPDATE`).Scan(&activeID)
	switch {
	case eris.Is(err, pgx.ErrNoRows):
		activeID = 0
	case err != nil:
		return nil, eris.Wrap(err, "postgres: read active version")
	}
	if activeID != v.ParentVersionID {
		return nil, eris.Wrapf(ErrStaleVersion, "active is v%d, parent is v%d", activeID, v.ParentVersionID)
	}

	if activeID != 0 {
		if _, err := tx.Exec(ctx, `UPDATE rule_versions SET active = FALSE WHERE version_id = $1`, activeID); err != nil {
			return nil, eris.Wrap(err, "postgres: deactivate version")
		}
	}

	rulesJSON, err := json.Marshal(v.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal rules")
	}
	createdAt := time.Now().UTC()
	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO rule_versions (rules, author, parent_version_id, active, created_at)
		 VALUES ($1, $2, $3, TRUE, $4) RETURNING version_id`,
		rulesJSON, v.Author, v.ParentVersionID, createdAt,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert version")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit insert version")
	}

	out := *v
	out.VersionID = id
	out.Active = true
	out.CreatedAt = createdAt
	return &out, nil
}

func (s *PostgresStore) CountVersions(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rule_versions`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count versions")
}

// Decisions

const pgDecisionSelect = `SELECT txn_id, vendor_key, final_account, blend_score, route, rule_version_id, breakdown, weights, thresholds, ts FROM blended_decisions`

func (s *PostgresStore) CreateDecision(ctx context.Context, d *model.BlendedDecision) error {
	breakdown, err := json.Marshal(d.SignalBreakdown)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal breakdown")
	}
	weights, err := json.Marshal(d.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}
	thresholds, err := json.Marshal(d.Thresholds)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal thresholds")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO blended_decisions
		 (id, txn_id, vendor_key, final_account, blend_score, route, rule_version_id, breakdown, weights, thresholds, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New().String(), d.TxnID, d.VendorKey, d.FinalAccount, d.BlendScore,
		string(d.Route), d.RuleVersionID, breakdown, weights, thresholds, d.Timestamp,
	)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) GetDecision(ctx context.Context, txnID string) (*model.BlendedDecision, error) {
	row := s.pool.QueryRow(ctx, pgDecisionSelect+` WHERE txn_id = $1 ORDER BY ts DESC LIMIT 1`, txnID)
	return scanPgDecision(row)
}

func (s *PostgresStore) ListRecentDecisions(ctx context.Context, limit int) ([]model.BlendedDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, pgDecisionSelect+` ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var ds []model.BlendedDecision
	for rows.Next() {
		d, err := scanPgDecision(rows)
		if err != nil {
			return nil, err
		}
		ds = append(ds, *d)
	}
	return ds, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

// Calibration

func (s *PostgresStore) SaveCalibrationModel(ctx context.Context, m *model.CalibrationModel) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal calibration model")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO calibration_models (id, method, payload, fitted_at) VALUES ($1, $2, $3, $4)`,
		m.ID, string(m.Method), payload, m.FittedAt,
	)
	return eris.Wrap(err, "postgres: insert calibration model")
}

func (s *PostgresStore) LatestCalibrationModel(ctx context.Context) (*model.CalibrationModel, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM calibration_models ORDER BY fitted_at DESC, id DESC LIMIT 1`,
	).Scan(&payload)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest calibration model")
	}
	var m model.CalibrationModel
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal calibration model")
	}
	return &m, nil
}

// Drift

func (s *PostgresStore) SaveDriftSnapshot(ctx context.Context, snap *model.DriftSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal drift snapshot")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO drift_snapshots (id, payload, alert_level, retrain_triggered, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, payload, string(snap.AlertLevel), snap.RetrainTriggered, snap.EvaluatedAt,
	)
	return eris.Wrap(err, "postgres: insert drift snapshot")
}

func (s *PostgresStore) ListDriftSnapshots(ctx context.Context, limit int) ([]model.DriftSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM drift_snapshots ORDER BY evaluated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drift snapshots")
	}
	defer rows.Close()

	var snaps []model.DriftSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan drift snapshot")
		}
		var snap model.DriftSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal drift snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list drift snapshots iterate")
}

func (s *PostgresStore) LastRetrainTrigger(ctx context.Context) (*time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT evaluated_at FROM drift_snapshots WHERE retrain_triggered
		 ORDER BY evaluated_at DESC LIMIT 1`,
	).Scan(&ts)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last retrain trigger")
	}
	return &ts, nil
}

// Audit

func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit details")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, action, author, succeeded, reason, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Action), e.Author, e.Succeeded, e.Reason, details, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert audit entry")
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, action, author, succeeded, reason, details, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var reason *string
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.Author, &e.Succeeded, &reason, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		if reason != nil {
			e.Reason = *reason
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

// scan helpers

func scanPgCandidate(row pgx.Row) (*model.RuleCandidate, error) {
	var c model.RuleCandidate
	var evJSON []byte
	var decidedBy *string
	var decidedAt *time.Time

	err := row.Scan(&c.ID, &c.VendorKey, &c.SuggestedAccount, &evJSON, &c.Status, &decidedBy, &decidedAt, &c.CreatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "candidate")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan candidate")
	}
	if err := json.Unmarshal(evJSON, &c.Evidence); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate evidence")
	}
	if decidedBy != nil {
		c.DecidedBy = *decidedBy
	}
	c.DecidedAt = decidedAt
	return &c, nil
}

func scanPgVersion(row pgx.Row) (*model.RuleVersion, error) {
	var v model.RuleVersion
	var rulesJSON []byte

	err := row.Scan(&v.VersionID, &rulesJSON, &v.Author, &v.ParentVersionID, &v.Active, &v.CreatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "rule version")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan version")
	}
	if err := json.Unmarshal(rulesJSON, &v.Rules); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal version rules")
	}
	return &v, nil
}

func scanPgDecision(row pgx.Row) (*model.BlendedDecision, error) {
	var d model.BlendedDecision
	var breakdown, weights, thresholds []byte

	err := row.Scan(&d.TxnID, &d.VendorKey, &d.FinalAccount, &d.BlendScore, &d.Route,
		&d.RuleVersionID, &breakdown, &weights, &thresholds, &d.Timestamp)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "decision")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan decision")
	}
	if err := json.Unmarshal(breakdown, &d.SignalBreakdown); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision breakdown")
	}
	if err := json.Unmarshal(weights, &d.Weights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision weights")
	}
	if err := json.Unmarshal(thresholds, &d.Thresholds); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision thresholds")
	}
	return &d, nil
}
