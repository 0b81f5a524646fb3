// Package store keeps a queryable index of incidents in SQLite. The JSONL
// event logs stay the source of truth; the index can be rebuilt from them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"airfield-sentinel-go/internal/models"
)

var ErrNotFound = errors.New("incident not found")

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	phase          TEXT NOT NULL,
	worst_severity INTEGER NOT NULL,
	first_seen     DOUBLE NOT NULL,
	last_seen      DOUBLE NOT NULL,
	min_clearance  DOUBLE NOT NULL,
	actor_a        TEXT NOT NULL,
	actor_b        TEXT NOT NULL,
	zone_name      TEXT NOT NULL DEFAULT '',
	lat            DOUBLE,
	lon            DOUBLE,
	events         INTEGER NOT NULL DEFAULT 1,
	clip_path      TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS incidents_last_seen ON incidents(last_seen DESC);
`

// Incident is the rolled-up view of every event sharing an id.
type Incident struct {
	ID            string               `json:"id"`
	Type          models.IncidentType  `json:"type"`
	Phase         models.IncidentPhase `json:"phase"`
	WorstSeverity models.Severity      `json:"worstSeverity"`
	FirstSeen     float64              `json:"firstSeen"`
	LastSeen      float64              `json:"lastSeen"`
	MinClearanceM float64              `json:"minClearanceM"`
	ActorA        string               `json:"aId"`
	ActorB        string               `json:"bId"`
	ZoneName      string               `json:"zoneName,omitempty"`
	Lat           *float64             `json:"lat,omitempty"`
	Lon           *float64             `json:"lon,omitempty"`
	Events        int                  `json:"events"`
	ClipPath      string               `json:"clipPath,omitempty"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type Filter struct {
	Phase models.IncidentPhase
	Type  models.IncidentType
	Limit int
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Upsert folds an event into its incident row.
func (s *Store) Upsert(ctx context.Context, ev models.IncidentEvent) error {
	var lat, lon any
	if ev.GeoEnriched {
		lat, lon = ev.Lat, ev.Lon
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, type, phase, worst_severity, first_seen, last_seen, min_clearance, actor_a, actor_b, zone_name, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase          = excluded.phase,
			worst_severity = MAX(worst_severity, excluded.worst_severity),
			last_seen      = MAX(last_seen, excluded.last_seen),
			min_clearance  = MIN(min_clearance, excluded.min_clearance),
			lat            = COALESCE(excluded.lat, lat),
			lon            = COALESCE(excluded.lon, lon),
			events         = events + 1,
			updated_at     = CURRENT_TIMESTAMP`,
		ev.IncidentID, string(ev.Type), string(ev.Phase), int(ev.Severity), ev.SimTime, ev.SimTime,
		ev.MinClearanceM, ev.ActorA, ev.ActorB, ev.ZoneName, lat, lon)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", ev.IncidentID, err)
	}
	return nil
}

// SetClip records the encoded clip for an incident.
func (s *Store) SetClip(ctx context.Context, incidentID, clipPath string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE incidents SET clip_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", clipPath, incidentID)
	if err != nil {
		return fmt.Errorf("set clip %s: %w", incidentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("set clip %s: %w", incidentID, ErrNotFound)
	}
	return nil
}

const selectColumns = `id, type, phase, worst_severity, first_seen, last_seen, min_clearance,
	actor_a, actor_b, zone_name, lat, lon, events, clip_path, updated_at`

func (s *Store) Incident(ctx context.Context, id string) (Incident, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM incidents WHERE id = ?", id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return inc, err
}

// Incidents lists incidents, most recently seen first.
func (s *Store) Incidents(ctx context.Context, f Filter) ([]Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(f.Phase))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	q := "SELECT " + selectColumns + " FROM incidents"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	q += " ORDER BY last_seen DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(sc scanner) (Incident, error) {
	var (
		inc      Incident
		typ      string
		phase    string
		severity int
		lat, lon sql.NullFloat64
	)
	err := sc.Scan(&inc.ID, &typ, &phase, &severity, &inc.FirstSeen, &inc.LastSeen, &inc.MinClearanceM,
		&inc.ActorA, &inc.ActorB, &inc.ZoneName, &lat, &lon, &inc.Events, &inc.ClipPath, &inc.UpdatedAt)
	if err != nil {
		return inc, err
	}
	inc.Type = models.IncidentType(typ)
	inc.Phase = models.IncidentPhase(phase)
	inc.WorstSeverity = models.Severity(severity)
	if lat.Valid {
		inc.Lat = &lat.Float64
	}
	if lon.Valid {
		inc.Lon = &lon.Float64
	}
	return inc, nil
}
