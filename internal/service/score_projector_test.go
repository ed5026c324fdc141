package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

func TestScoreProjectorEnrollmentWithoutLossReachesCeiling(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-04-15"), false)
	require.NoError(t, err)
	assert.Equal(t, 10.0, state.Score)
	assert.Equal(t, models.BehaviorExceptional, state.Behavior)
	assert.Equal(t, 73, state.Breakdown.DaysSinceLoss)
	assert.Equal(t, date("2025-02-01"), state.Breakdown.ClockStart)
}

func TestScoreProjectorWrittenWarningSameDay(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-03-01")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-03-01"), false)
	require.NoError(t, err)
	assert.Equal(t, 7.7, state.Score)
	assert.Equal(t, models.BehaviorGood, state.Behavior)
	require.NotNil(t, state.Breakdown.LastLossOn)
	assert.Equal(t, date("2025-03-01"), *state.Breakdown.LastLossOn)
}

func TestScoreProjectorNoLossThreshold(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-03-01")
	projector := newTestProjector(store)

	atSixty, err := projector.Project(context.Background(), "s1", date("2025-04-30"), false)
	require.NoError(t, err)
	assert.Equal(t, 60, atSixty.Breakdown.DaysSinceLoss)
	assert.Zero(t, atSixty.Breakdown.NoLossBonus)
	assert.Equal(t, 7.7, atSixty.Score)

	atSixtyOne, err := projector.Project(context.Background(), "s1", date("2025-05-01"), false)
	require.NoError(t, err)
	assert.Equal(t, 0.2, atSixtyOne.Breakdown.NoLossBonus)
	assert.Equal(t, 7.9, atSixtyOne.Score)

	atSixtyThree, err := projector.Project(context.Background(), "s1", date("2025-05-03"), false)
	require.NoError(t, err)
	assert.Equal(t, 8.3, atSixtyThree.Score)
}

func TestScoreProjectorClampsAfterEveryEvent(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -5.0, "2025-03-01")
	store.record("s1", models.EventIncident, -5.0, "2025-03-02")
	store.record("s1", models.EventIncident, 0.5, "2025-03-03")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-03-03"), false)
	require.NoError(t, err)
	assert.Equal(t, 0.5, state.Score)
	assert.Equal(t, models.BehaviorIncompatible, state.Behavior)
	assert.Equal(t, 3, state.Breakdown.EventsReplayed)
}

func TestScoreProjectorIgnoresMaterialisedBonuses(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-03-01")
	store.record("s1", models.EventNoLossDailyBonus, 0.2, "2025-05-01")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-05-01"), false)
	require.NoError(t, err)
	assert.Equal(t, 7.9, state.Score)
	assert.Equal(t, 1, state.Breakdown.EventsReplayed)
}

func TestScoreProjectorOpeningBalanceFloorsHistory(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2024-02-01")
	store.record("s1", models.EventIncident, -3.0, "2024-12-20")
	store.record("s1", models.EventYearOpeningBalance, 9.1, "2026-01-01")
	store.record("s1", models.EventYearOpeningBalance, 6.4, "2025-01-01")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-01-10"), false)
	require.NoError(t, err)
	assert.Equal(t, 6.4, state.Score)
	assert.True(t, state.Breakdown.CarriedOver)
	assert.Zero(t, state.Breakdown.EventsReplayed)
	require.NotNil(t, state.Breakdown.LastLossOn)
	assert.Equal(t, date("2024-12-20"), state.Breakdown.ClockStart)
	assert.Equal(t, models.BehaviorRegular, state.Behavior)
}

func TestScoreProjectorWithoutOpeningReplaysPriorYears(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2024-02-01")
	store.record("s1", models.EventIncident, -1.0, "2024-12-20")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-01-10"), false)
	require.NoError(t, err)
	assert.Equal(t, 7.0, state.Score)
	assert.False(t, state.Breakdown.CarriedOver)
}

func TestScoreProjectorPeriodBonus(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.addPeriod(2025, 1, "2025-02-01", "2025-04-30")
	store.addPeriod(2025, 2, "2025-05-05", "2025-07-15")
	store.setAverage("s1", 2025, 1, 8.5)
	store.setAverage("s1", 2025, 2, 9.0)
	store.record("s1", models.EventIncident, -3.0, "2025-04-20")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-05-10"), false)
	require.NoError(t, err)
	assert.Equal(t, 5.5, state.Score)
	assert.Equal(t, models.BehaviorRegular, state.Behavior)
	assert.Equal(t, []models.PeriodRef{{AcademicYear: 2025, PeriodNumber: 1}}, state.Breakdown.BonusPeriods)
}

func TestScoreProjectorPeriodBonusRequiresEnrollmentByPeriodEnd(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-05-02")
	store.addPeriod(2025, 1, "2025-02-01", "2025-04-30")
	store.setAverage("s1", 2025, 1, 9.5)
	store.record("s1", models.EventIncident, -3.0, "2025-05-05")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-05-10"), false)
	require.NoError(t, err)
	assert.Equal(t, 5.0, state.Score)
	assert.Empty(t, state.Breakdown.BonusPeriods)
}

func TestScoreProjectorIsDeterministic(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-03-01")
	store.record("s1", models.EventIncident, 0.5, "2025-03-01")
	store.record("s1", models.EventIncident, -1.5, "2025-03-10")
	projector := newTestProjector(store)

	first, err := projector.Project(context.Background(), "s1", date("2025-06-01"), false)
	require.NoError(t, err)
	second, err := projector.Project(context.Background(), "s1", date("2025-06-01"), false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScoreProjectorFreezeOverwritesSnapshot(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "2025-02-01")
	store.record("s1", models.EventIncident, -0.3, "2025-03-01")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-03-05"), true)
	require.NoError(t, err)
	assert.True(t, state.Breakdown.FrozenIntoCache)
	require.Len(t, store.overwrites, 1)
	assert.Equal(t, snapshotKey{"s1", 2025, 1}, store.overwrites[0])
	assert.Equal(t, 7.7, store.snapshots[snapshotKey{"s1", 2025, 1}].CurrentScore)
}

func TestScoreProjectorUnknownStudent(t *testing.T) {
	_, err := newTestProjector(newMemoryStore()).Project(context.Background(), "ghost", date("2025-03-05"), false)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestScoreProjectorWithoutEnrollmentStartsClockAtAsOf(t *testing.T) {
	store := newMemoryStore()
	store.addStudent("s1", "")

	state, err := newTestProjector(store).Project(context.Background(), "s1", date("2025-09-01"), false)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultOpeningScore, state.Score)
	assert.Zero(t, state.Breakdown.DaysSinceLoss)
}
