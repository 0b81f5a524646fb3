package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ev(phase models.IncidentPhase, sev models.Severity, simTime, clearance float64) models.IncidentEvent {
	return models.IncidentEvent{
		IncidentID:    "WingClearance_AAL2_vs_DAL1_20230501T120000123Z",
		Type:          models.IncidentTypeWingClearance,
		Phase:         phase,
		Severity:      sev,
		SimTime:       simTime,
		ActorA:        "AAL2",
		ActorB:        "DAL1",
		MinClearanceM: clearance,
	}
}

func TestUpsertRollsUpEpisode(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, ev(models.PhasePredicted, models.SeverityWarning, 1, 58)))
	require.NoError(t, s.Upsert(ctx, ev(models.PhaseLive, models.SeverityCritical, 2, 40).WithGeo(36.1, -79.9, 0)))
	require.NoError(t, s.Upsert(ctx, ev(models.PhaseCleared, models.SeverityInfo, 4, 65)))

	inc, err := s.Incident(ctx, "WingClearance_AAL2_vs_DAL1_20230501T120000123Z")
	require.NoError(t, err)

	assert.Equal(t, models.PhaseCleared, inc.Phase)
	assert.Equal(t, models.SeverityCritical, inc.WorstSeverity)
	assert.Equal(t, 1.0, inc.FirstSeen)
	assert.Equal(t, 4.0, inc.LastSeen)
	assert.Equal(t, 40.0, inc.MinClearanceM)
	assert.Equal(t, 3, inc.Events)
	require.NotNil(t, inc.Lat)
	assert.InDelta(t, 36.1, *inc.Lat, 1e-12)
	assert.Equal(t, "AAL2", inc.ActorA)
}

func TestSetClip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetClip(ctx, "missing", "x.mp4"), ErrNotFound)

	e := ev(models.PhaseLive, models.SeverityCritical, 2, 40)
	require.NoError(t, s.Upsert(ctx, e))
	require.NoError(t, s.SetClip(ctx, e.IncidentID, "Captures/x/incident.mp4"))

	inc, err := s.Incident(ctx, e.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "Captures/x/incident.mp4", inc.ClipPath)
	assert.Nil(t, inc.Lat)
}

func TestIncidentsFilterAndOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	a := ev(models.PhaseLive, models.SeverityCritical, 5, 40)
	a.IncidentID = "a"
	b := ev(models.PhaseCleared, models.SeverityInfo, 9, 70)
	b.IncidentID = "b"
	z := models.IncidentEvent{
		IncidentID: "RunwayIncursion_R09_AAL2_20230501T120000000Z",
		Type:       models.IncidentTypeRunwayIncursion,
		Phase:      models.PhaseLive,
		Severity:   models.SeverityWarning,
		SimTime:    7,
		ActorA:     "AAL2",
		ActorB:     "R09",
		ZoneName:   "R09",
	}
	for _, e := range []models.IncidentEvent{a, b, z} {
		require.NoError(t, s.Upsert(ctx, e))
	}

	all, err := s.Incidents(ctx, Filter{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, inc := range all {
		ids[i] = inc.ID
	}
	assert.Equal(t, []string{"b", z.IncidentID, "a"}, ids)

	live, err := s.Incidents(ctx, Filter{Phase: models.PhaseLive})
	require.NoError(t, err)
	assert.Len(t, live, 2)

	runway, err := s.Incidents(ctx, Filter{Type: models.IncidentTypeRunwayIncursion, Limit: 1})
	require.NoError(t, err)
	require.Len(t, runway, 1)
	assert.Equal(t, "R09", runway[0].ZoneName)

	_, err = s.Incident(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
