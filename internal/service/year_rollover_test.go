package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

func newTestRollover(store *memoryStore) *YearRollover {
	return NewYearRollover(store, store, store, NewPeriodResolver(store, nil), nil, NewMetricsService(), nil)
}

func TestYearRolloverCarriesLastSnapshot(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.addStudent("s2", "2025-02-01")
	store.snapshots[snapshotKey{"s1", 2025, 3}] = &models.PeriodSnapshot{StudentID: "s1", AcademicYear: 2025, PeriodNumber: 3, CurrentScore: 8.7}
	store.snapshots[snapshotKey{"s1", 2025, 4}] = &models.PeriodSnapshot{StudentID: "s1", AcademicYear: 2025, PeriodNumber: 4, CurrentScore: 9.1}

	summary, err := newTestRollover(store).Rollover(context.Background(), 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Examined)
	assert.Equal(t, 2, summary.Applied)

	s1 := store.eventsOfType("s1", models.EventYearOpeningBalance)
	require.Len(t, s1, 1)
	assert.Equal(t, 9.1, s1[0].Delta)
	assert.Equal(t, date("2026-01-01"), s1[0].OccurredOn)
	assert.Equal(t, 2026, s1[0].AcademicYear)
	assert.Equal(t, 1, s1[0].PeriodNumber)

	s2 := store.eventsOfType("s2", models.EventYearOpeningBalance)
	require.Len(t, s2, 1)
	assert.Equal(t, models.DefaultOpeningScore, s2[0].Delta)
}

func TestYearRolloverRerunSkipsCarriedStudents(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	rollover := newTestRollover(store)

	_, err := rollover.Rollover(context.Background(), 2025)
	require.NoError(t, err)
	summary, err := rollover.Rollover(context.Background(), 2025)
	require.NoError(t, err)
	assert.Zero(t, summary.Applied)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, store.eventsOfType("s1", models.EventYearOpeningBalance), 1)
}

func TestYearRolloverFeedsNextYearProjection(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -1.5, "2025-12-10")
	store.snapshots[snapshotKey{"s1", 2025, 4}] = &models.PeriodSnapshot{StudentID: "s1", AcademicYear: 2025, PeriodNumber: 4, CurrentScore: 9.1}

	_, err := newTestRollover(store).Rollover(context.Background(), 2025)
	require.NoError(t, err)

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2026-01-05"), false)
	require.NoError(t, err)
	assert.Equal(t, 9.1, state.Score)
	assert.True(t, state.Breakdown.CarriedOver)
	require.NotNil(t, state.Breakdown.LastLossOn)
	assert.Equal(t, date("2025-12-10"), *state.Breakdown.LastLossOn)
	assert.Equal(t, models.BehaviorExcellent, state.Behavior)
}

func TestYearRolloverKeepsDecemberLossOnNoLossClock(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2024-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-12-20")
	store.snapshots[snapshotKey{"s1", 2025, 4}] = &models.PeriodSnapshot{StudentID: "s1", AcademicYear: 2025, PeriodNumber: 4, CurrentScore: 7.7}

	_, err := newTestRollover(store).Rollover(context.Background(), 2025)
	require.NoError(t, err)

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2026-03-05"), false)
	require.NoError(t, err)
	assert.Equal(t, 7.7, state.Breakdown.BaseScore)
	assert.Zero(t, state.Breakdown.EventsReplayed)
	require.NotNil(t, state.Breakdown.LastLossOn)
	assert.Equal(t, date("2025-12-20"), *state.Breakdown.LastLossOn)
	assert.Equal(t, date("2025-12-20"), state.Breakdown.ClockStart)
	assert.Equal(t, 75, state.Breakdown.DaysSinceLoss)
	assert.InDelta(t, 3.0, state.Breakdown.NoLossBonus, 1e-9)
	assert.Equal(t, 10.0, state.Score)
}

func TestYearRolloverCountsFailures(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.addStudent("s2", "2025-02-01")
	store.failChecksFor["s1"] = true

	summary, err := newTestRollover(store).Rollover(context.Background(), 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Applied)
}

func TestYearRolloverRequiresYear(t *testing.T) {
	_, err := newTestRollover(newMemoryStore()).Rollover(context.Background(), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
