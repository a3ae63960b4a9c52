package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetEvidence_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT vendor_key, account, count, mean, m2, conflicting, first_seen, last_seen`).
		WithArgs("unknown vendor", "6100").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetEvidence(context.Background(), "unknown vendor", "6100")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertEvidence(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(vendor_key, account\)`).
		WithArgs("starbucks", "6100", int64(3), 0.91, 0.002, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.UpsertEvidence(context.Background(), &model.EvidenceRecord{
		VendorKey: "starbucks", Account: "6100",
		Count: 3, Mean: 0.91, M2: 0.002,
		FirstSeen: now, LastSeen: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetActiveVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"version_id", "rules", "author", "parent_version_id", "active", "created_at"}).
		AddRow(int64(3), []byte(`[{"id":"r1","pattern":"starbucks","account":"6100"}]`), "blake", int64(2), true, time.Now().UTC())
	mock.ExpectQuery(`SELECT version_id, rules, author, parent_version_id, active, created_at FROM rule_versions WHERE active`).
		WillReturnRows(rows)

	v, err := s.GetActiveVersion(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, v.VersionID)
	require.Len(t, v.Rules, 1)
	assert.Equal(t, "starbucks", v.Rules[0].Pattern)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertVersion_StaleParent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version_id FROM rule_versions WHERE active FOR UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"version_id"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := s.InsertVersion(context.Background(), &model.RuleVersion{
		Author:          "blake",
		ParentVersionID: 3,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertVersion_Swap(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version_id FROM rule_versions WHERE active FOR UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"version_id"}).AddRow(int64(1)))
	mock.ExpectExec(`UPDATE rule_versions SET active = FALSE`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO rule_versions`).
		WithArgs(pgxmock.AnyArg(), "blake", int64(1), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"version_id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	v, err := s.InsertVersion(context.Background(), &model.RuleVersion{
		Author:          "blake",
		ParentVersionID: 1,
		Rules:           []model.Rule{{ID: "r1", Pattern: "starbucks", Account: "6100"}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.VersionID)
	assert.True(t, v.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastRetrainTrigger_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT evaluated_at FROM drift_snapshots WHERE retrain_triggered`).
		WillReturnError(pgx.ErrNoRows)

	ts, err := s.LastRetrainTrigger(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), "promote", "blake", true, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAudit(context.Background(), &model.AuditEntry{
		Action:    model.AuditPromote,
		Author:    "blake",
		Succeeded: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
