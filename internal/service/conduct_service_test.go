package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-conduct-api/internal/dto"
	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

type conductFixture struct {
	store   *memoryStore
	repo    *memoryCache
	service *ConductService
}

func newConductFixture(t *testing.T, cfg ConductServiceConfig) *conductFixture {
	t.Helper()
	store := newMemoryStore()
	repo := newMemoryCache()
	metrics := NewMetricsService()
	conductCache := NewConductCache(repo, metrics, time.Minute, nil, true)
	measures := NewMeasureConfigService(store, nil, nil)
	svc := NewConductService(newTestProjector(store), store, store, store, NewPeriodResolver(store, nil), measures, conductCache, metrics, nil, nil, cfg)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC) }
	return &conductFixture{store: store, repo: repo, service: svc}
}

func TestRegisterIncidentDeltaAppliesMeasure(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")

	resp, err := f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{
		Description: "Advertência Escrita",
		Quantity:    "1",
		IncidentID:  "inc-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.True(t, resp.Matched)
	assert.Equal(t, -0.3, resp.Delta)
	assert.Equal(t, 7.7, resp.Score)
	assert.Equal(t, string(models.BehaviorGood), resp.Behavior)
	assert.Equal(t, "2025-03-01", resp.OccurredOn)
	assert.NotEmpty(t, resp.EventID)

	incidents := f.store.eventsOfType("s1", models.EventIncident)
	require.Len(t, incidents, 1)
	require.NotNil(t, incidents[0].SourceIncidentID)
	assert.Equal(t, "inc-1", *incidents[0].SourceIncidentID)
	assert.Equal(t, 1, incidents[0].PeriodNumber)
}

func TestRegisterIncidentDeltaUsesOccurredOn(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")
	f.store.addPeriod(2025, 2, "2025-05-05", "2025-07-15")

	resp, err := f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{
		Description: "Suspensão de 3 dias",
		OccurredOn:  "2025-05-20",
	})
	require.NoError(t, err)
	assert.Equal(t, -1.5, resp.Delta)
	assert.Equal(t, 2, resp.PeriodNumber)
	assert.Equal(t, 6.5, resp.Score)
}

func TestRegisterIncidentDeltaUnmatchedIsPermissive(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")

	resp, err := f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{Description: "Conversa com responsáveis"})
	require.NoError(t, err)
	assert.False(t, resp.Applied)
	assert.False(t, resp.Matched)
	assert.Zero(t, resp.Delta)
	assert.Equal(t, models.DefaultOpeningScore, resp.Score)
	assert.Empty(t, f.store.eventsOfType("s1", models.EventIncident))
}

func TestRegisterIncidentDeltaUnmatchedStrict(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{StrictMeasures: true})
	f.store.addStudent("s1", "2025-02-01")

	_, err := f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{Description: "Conversa com responsáveis"})
	assert.ErrorIs(t, err, appErrors.ErrUnknownMeasure)
}

func TestRegisterIncidentDeltaValidation(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")

	_, err := f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.service.RegisterIncidentDelta(context.Background(), "ghost", dto.RegisterIncidentRequest{Description: "Elogio"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestComputeCurrentStateServesFromCache(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")
	f.store.record("s1", models.EventIncident, -0.3, "2025-02-20")

	first, cached, err := f.service.ComputeCurrentState(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 7.7, first.Score)
	assert.Equal(t, 1, f.repo.size())

	second, cached, err := f.service.ComputeCurrentState(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Score, second.Score)
}

func TestRegisterIncidentDeltaInvalidatesCache(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")

	_, _, err := f.service.ComputeCurrentState(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 1, f.repo.size())

	_, err = f.service.RegisterIncidentDelta(context.Background(), "s1", dto.RegisterIncidentRequest{Description: "Advertência Oral"})
	require.NoError(t, err)
	assert.Zero(t, f.repo.size())

	state, cached, err := f.service.ComputeCurrentState(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 7.9, state.Score)
}

func TestProjectAtFreezeBypassesCache(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")

	state, cached, err := f.service.ProjectAt(context.Background(), "s1", date("2025-02-10"), true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.True(t, state.Breakdown.FrozenIntoCache)
	assert.Zero(t, f.repo.size())
	assert.Len(t, f.store.overwrites, 1)
}

func TestListEventsMapsLedger(t *testing.T) {
	f := newConductFixture(t, ConductServiceConfig{})
	f.store.addStudent("s1", "2025-02-01")
	f.store.record("s1", models.EventIncident, -0.3, "2025-02-20")
	f.store.record("s1", models.EventNoLossDailyBonus, 0.2, "2025-04-25")

	items, pagination, err := f.service.ListEvents(context.Background(), "s1", dto.ConductEventsQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "NO_LOSS_DAILY_BONUS", items[0].EventType)
	assert.Equal(t, "2025-02-20", items[1].OccurredOn)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	_, _, err = f.service.ListEvents(context.Background(), "s1", dto.ConductEventsQuery{Types: []string{"BOGUS"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestToStateResponse(t *testing.T) {
	lossOn := date("2025-03-01")
	resp := ToStateResponse(&models.ConductState{
		StudentID: "s1",
		AsOf:      date("2025-05-10"),
		Score:     5.5,
		Behavior:  models.BehaviorRegular,
		Breakdown: models.ConductBreakdown{
			LastLossOn:   &lossOn,
			ClockStart:   lossOn,
			PeriodBonus:  0.5,
			BonusPeriods: []models.PeriodRef{{AcademicYear: 2025, PeriodNumber: 1}},
		},
	}, true)
	assert.Equal(t, "2025-05-10", resp.AsOf)
	assert.Equal(t, "2025-03-01", resp.Breakdown.LastLossOn)
	assert.Equal(t, []string{"2025/1"}, resp.Breakdown.BonusPeriods)
	assert.True(t, resp.Cached)
}
