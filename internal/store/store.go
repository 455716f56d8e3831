// Package store owns the canonical hazard collection and its lifecycle.
//
// Hazards live in an in-process SQLite database (":memory:" by default, so
// state is lost on restart). A store-level lock serializes mutations so the
// duplicate check plus insert, and the lookup plus resolve, are each atomic
// with respect to concurrent callers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/roadwatch/go-road-hazards/internal/geo"
	"github.com/roadwatch/go-road-hazards/internal/models"
)

// Params are the tunable matching thresholds.
type Params struct {
	DedupRadiusKm   float64       // active hazard closer than this suppresses a same-type report
	DedupWindow     time.Duration // only hazards younger than this can suppress
	ResolveRadiusKm float64       // resolver must be within this distance of the hazard
}

type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	clock  clockwork.Clock
	params Params
}

// Open opens (and migrates) the hazard database. Pass clock as nil to use
// real time; tests inject a fake to step through the dedup window.
func Open(dsn string, params Params, clock clockwork.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A ":memory:" DSN is per-connection; keep a single connection so every
	// query sees the same database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Store{
		db:     db,
		clock:  clock,
		params: params,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS hazards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			severity TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			status TEXT NOT NULL,
			reported_by TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			evidence_ref TEXT NOT NULL DEFAULT '',
			resolution_evidence_ref TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			resolved_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_hazards_status ON hazards(status);
		CREATE INDEX IF NOT EXISTS idx_hazards_type_created_at ON hazards(type, created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const hazardColumns = `id, type, latitude, longitude, severity, confidence, status,
	reported_by, resolved_by, evidence_ref, resolution_evidence_ref, created_at, resolved_at`

// ReportInput is a new hazard report as it arrives from the boundary layer,
// coordinates already validated.
type ReportInput struct {
	Type        models.HazardType
	Latitude    float64
	Longitude   float64
	Severity    models.Severity
	Confidence  int
	EvidenceRef string
	ReportedBy  string
}

// ReportResult carries either the freshly created hazard or, when the report
// was suppressed, the active hazard it matched.
type ReportResult struct {
	Hazard    *models.Hazard
	Duplicate bool
}

// Report runs the duplicate check and, on novelty, inserts a new active
// hazard. A report is a duplicate if an active hazard of the same type exists
// within the dedup radius and younger than the dedup window; resolved hazards
// never match, so a cleared hazard is re-reportable immediately.
func (s *Store) Report(ctx context.Context, in ReportInput) (ReportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.params.DedupWindow)
	origin := models.Coordinates{Latitude: in.Latitude, Longitude: in.Longitude}

	rows, err := s.db.QueryContext(ctx, `SELECT `+hazardColumns+` FROM hazards
		WHERE status = ? AND type = ? AND created_at > ?`,
		models.HazardStatusActive, in.Type, cutoff.UnixNano())
	if err != nil {
		return ReportResult{}, fmt.Errorf("error querying active hazards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return ReportResult{}, err
		}
		if geo.DistanceKm(origin, h.Coordinates()) < s.params.DedupRadiusKm {
			return ReportResult{Hazard: h, Duplicate: true}, nil
		}
	}
	if err := rows.Err(); err != nil {
		return ReportResult{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO hazards
		(type, latitude, longitude, severity, confidence, status, reported_by, evidence_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Type, in.Latitude, in.Longitude, in.Severity, in.Confidence,
		models.HazardStatusActive, in.ReportedBy, in.EvidenceRef, now.UnixNano())
	if err != nil {
		return ReportResult{}, fmt.Errorf("error inserting hazard: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ReportResult{}, err
	}

	return ReportResult{
		Hazard: &models.Hazard{
			ID:          id,
			Type:        in.Type,
			Latitude:    in.Latitude,
			Longitude:   in.Longitude,
			Severity:    in.Severity,
			Confidence:  in.Confidence,
			Status:      models.HazardStatusActive,
			ReportedBy:  in.ReportedBy,
			EvidenceRef: in.EvidenceRef,
			CreatedAt:   now,
		},
	}, nil
}

type ResolveOutcome string

const (
	ResolveOutcomeResolved        ResolveOutcome = "resolved"
	ResolveOutcomeNotFound        ResolveOutcome = "not_found"
	ResolveOutcomeAlreadyResolved ResolveOutcome = "already_resolved"
	ResolveOutcomeTooFar          ResolveOutcome = "too_far"
)

// ResolveResult is a tagged outcome; only ResolveOutcomeResolved mutates
// state. DistanceKm is the measured resolver-to-hazard distance (set for
// too_far and resolved).
type ResolveResult struct {
	Outcome    ResolveOutcome
	Hazard     *models.Hazard
	DistanceKm float64
}

// Resolve applies the active -> resolved transition if the resolver is close
// enough. Resolving an already-resolved hazard is a no-op that reports the
// existing state, so concurrent resolves never double-apply.
func (s *Store) Resolve(ctx context.Context, id int64, resolver models.Coordinates, resolvedBy, evidenceRef string) (ResolveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.getByID(ctx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if h == nil {
		return ResolveResult{Outcome: ResolveOutcomeNotFound}, nil
	}
	if h.Status == models.HazardStatusResolved {
		return ResolveResult{Outcome: ResolveOutcomeAlreadyResolved, Hazard: h}, nil
	}

	distance := geo.DistanceKm(resolver, h.Coordinates())
	if distance > s.params.ResolveRadiusKm {
		return ResolveResult{Outcome: ResolveOutcomeTooFar, Hazard: h, DistanceKm: distance}, nil
	}

	now := s.clock.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE hazards
		SET status = ?, resolved_by = ?, resolution_evidence_ref = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		models.HazardStatusResolved, resolvedBy, evidenceRef, now.UnixNano(),
		id, models.HazardStatusActive)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("error resolving hazard %d: %w", id, err)
	}

	h.Status = models.HazardStatusResolved
	h.ResolvedBy = resolvedBy
	h.ResolutionEvidenceRef = evidenceRef
	h.ResolvedAt = &now

	return ResolveResult{Outcome: ResolveOutcomeResolved, Hazard: h, DistanceKm: distance}, nil
}

// GetByID returns the hazard with that id, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Hazard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByID(ctx, id)
}

func (s *Store) getByID(ctx context.Context, id int64) (*models.Hazard, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hazardColumns+` FROM hazards WHERE id = ?`, id)
	h, err := scanHazard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListRecent returns up to limit hazards, newest first (descending id, which
// matches creation order).
func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.Hazard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hazardColumns+` FROM hazards ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing hazards: %w", err)
	}
	defer rows.Close()
	return collectHazards(rows)
}

// ListByStatus returns up to limit hazards in the given status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status models.HazardStatus, limit int) ([]models.Hazard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hazardColumns+` FROM hazards WHERE status = ? ORDER BY id DESC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing hazards by status: %w", err)
	}
	defer rows.Close()
	return collectHazards(rows)
}

// ListActiveNear returns active hazards within radiusKm of origin, each
// annotated with its computed distance, ordered by ascending distance.
func (s *Store) ListActiveNear(ctx context.Context, origin models.Coordinates, radiusKm float64) ([]models.HazardWithDistance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hazardColumns+` FROM hazards WHERE status = ?`, models.HazardStatusActive)
	if err != nil {
		return nil, fmt.Errorf("error listing active hazards: %w", err)
	}
	defer rows.Close()

	var nearby []models.HazardWithDistance
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, err
		}
		if d := geo.DistanceKm(origin, h.Coordinates()); d <= radiusKm {
			nearby = append(nearby, models.HazardWithDistance{Hazard: *h, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby, nil
}

// Counts reports total, active, and resolved hazard counts.
func (s *Store) Counts(ctx context.Context) (total, active, resolved int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM hazards`,
		models.HazardStatusActive, models.HazardStatusResolved)
	if err := row.Scan(&total, &active, &resolved); err != nil {
		return 0, 0, 0, fmt.Errorf("error counting hazards: %w", err)
	}
	return total, active, resolved, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHazard(row rowScanner) (*models.Hazard, error) {
	var (
		h          models.Hazard
		createdNs  int64
		resolvedNs sql.NullInt64
	)
	err := row.Scan(&h.ID, &h.Type, &h.Latitude, &h.Longitude, &h.Severity,
		&h.Confidence, &h.Status, &h.ReportedBy, &h.ResolvedBy,
		&h.EvidenceRef, &h.ResolutionEvidenceRef, &createdNs, &resolvedNs)
	if err != nil {
		return nil, err
	}
	h.CreatedAt = time.Unix(0, createdNs).UTC()
	if resolvedNs.Valid {
		t := time.Unix(0, resolvedNs.Int64).UTC()
		h.ResolvedAt = &t
	}
	return &h, nil
}

func collectHazards(rows *sql.Rows) ([]models.Hazard, error) {
	hazards := []models.Hazard{}
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, err
		}
		hazards = append(hazards, *h)
	}
	return hazards, rows.Err()
}
