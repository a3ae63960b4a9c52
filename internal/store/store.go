package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-engine/internal/config"
	"github.com/sells-group/decision-engine/internal/model"
)

// Sentinel errors surfaced through eris wrapping; match with eris.Is.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrStaleVersion is returned by InsertVersion when the caller's parent
	// version is no longer the active one. The caller must re-read the
	// active version and retry; the store never silently overwrites.
	ErrStaleVersion = eris.New("store: stale rule version")
)

// Store defines the persistence interface for the decision engine.
type Store interface {
	// Evidence (mutated in place per vendor/account)
	GetEvidence(ctx context.Context, vendorKey, account string) (*model.EvidenceRecord, error)
	UpsertEvidence(ctx context.Context, rec *model.EvidenceRecord) error
	ListVendorEvidence(ctx context.Context, vendorKey string) ([]model.EvidenceRecord, error)
	SetVendorConflicting(ctx context.Context, vendorKey string, conflicting bool) error

	// Rule candidates (mutable status field only)
	CreateCandidate(ctx context.Context, c *model.RuleCandidate) error
	GetCandidate(ctx context.Context, id string) (*model.RuleCandidate, error)
	FindCandidate(ctx context.Context, vendorKey, account string) (*model.RuleCandidate, error)
	ListCandidates(ctx context.Context, status model.CandidateStatus) ([]model.RuleCandidate, error)
	UpdateCandidateStatus(ctx context.Context, id string, status model.CandidateStatus, decidedBy string) error
	UpdateCandidateEvidence(ctx context.Context, id string, ev model.EvidenceRecord) error
	CountCandidates(ctx context.Context) (int, error)

	// Rule versions (immutable, append-only)
	GetActiveVersion(ctx context.Context) (*model.RuleVersion, error)
	GetVersion(ctx context.Context, versionID int64) (*model.RuleVersion, error)
	ListVersions(ctx context.Context) ([]model.RuleVersion, error)
	InsertVersion(ctx context.Context, v *model.RuleVersion) (*model.RuleVersion, error)
	CountVersions(ctx context.Context) (int, error)

	// Blended decisions (immutable, append-only)
	CreateDecision(ctx context.Context, d *model.BlendedDecision) error
	GetDecision(ctx context.Context, txnID string) (*model.BlendedDecision, error)
	ListRecentDecisions(ctx context.Context, limit int) ([]model.BlendedDecision, error)

	// Calibration models (latest wins, history retained)
	SaveCalibrationModel(ctx context.Context, m *model.CalibrationModel) error
	LatestCalibrationModel(ctx context.Context) (*model.CalibrationModel, error)

	// Drift snapshots (append-only time series)
	SaveDriftSnapshot(ctx context.Context, s *model.DriftSnapshot) error
	ListDriftSnapshots(ctx context.Context, limit int) ([]model.DriftSnapshot, error)
	LastRetrainTrigger(ctx context.Context) (*time.Time, error)

	// Audit trail
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects a backend from config. SQLite is the default; postgres is
// used by deployments that already run one.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
