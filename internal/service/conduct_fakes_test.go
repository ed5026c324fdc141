package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

type snapshotKey struct {
	student string
	year    int
	period  int
}

// memoryStore is an in-memory stand-in for every storage port of the scoring engine.
type memoryStore struct {
	mu        sync.Mutex
	seq       int64
	events    []models.DisciplinaryEvent
	students  map[string]models.Student
	snapshots map[snapshotKey]*models.PeriodSnapshot
	periods   []models.AcademicPeriod
	averages  map[string]map[models.PeriodRef]float64
	settings  []models.MeasureSetting

	failChecksFor map[string]bool
	failApplyFor  map[string]bool
	overwrites    []snapshotKey
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		students:      make(map[string]models.Student),
		snapshots:     make(map[snapshotKey]*models.PeriodSnapshot),
		averages:      make(map[string]map[models.PeriodRef]float64),
		failChecksFor: make(map[string]bool),
		failApplyFor:  make(map[string]bool),
	}
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func (m *memoryStore) addStudent(id string, enrolled string) {
	student := models.Student{ID: id}
	if enrolled != "" {
		student.EnrollmentDate = datePtr(enrolled)
	}
	m.students[id] = student
}

func (m *memoryStore) addPeriod(year, number int, start, end string) {
	m.periods = append(m.periods, models.AcademicPeriod{AcademicYear: year, PeriodNumber: number, StartDate: datePtr(start), EndDate: datePtr(end)})
}

func (m *memoryStore) setAverage(student string, year, period int, avg float64) {
	if m.averages[student] == nil {
		m.averages[student] = make(map[models.PeriodRef]float64)
	}
	m.averages[student][models.PeriodRef{AcademicYear: year, PeriodNumber: period}] = avg
}

func (m *memoryStore) record(student string, eventType models.DisciplinaryEventType, delta float64, on string) {
	t := date(on)
	_ = m.Append(context.Background(), &models.DisciplinaryEvent{
		StudentID:    student,
		AcademicYear: t.Year(),
		PeriodNumber: quarterOf(t).PeriodNumber,
		EventType:    eventType,
		Delta:        delta,
		OccurredOn:   t,
	})
}

func (m *memoryStore) eventsOfType(student string, eventType models.DisciplinaryEventType) []models.DisciplinaryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DisciplinaryEvent
	for _, e := range m.events {
		if e.StudentID == student && e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ledger

func (m *memoryStore) Append(_ context.Context, event *models.DisciplinaryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(event)
	return nil
}

func (m *memoryStore) appendLocked(event *models.DisciplinaryEvent) {
	m.seq++
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Seq = m.seq
	event.OccurredOn = models.DateOnly(event.OccurredOn)
	m.events = append(m.events, *event)
}

func (m *memoryStore) EventsFor(_ context.Context, studentID string, upTo time.Time, floor *time.Time) ([]models.DisciplinaryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DisciplinaryEvent
	for _, e := range m.events {
		if e.StudentID != studentID || e.OccurredOn.After(models.DateOnly(upTo)) {
			continue
		}
		if floor != nil && e.OccurredOn.Before(*floor) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredOn.Equal(out[j].OccurredOn) {
			return out[i].OccurredOn.Before(out[j].OccurredOn)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (m *memoryStore) LatestOpeningBalance(_ context.Context, studentID string, year int) (*models.DisciplinaryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChecksFor[studentID] {
		return nil, errors.New("ledger unavailable")
	}
	var latest *models.DisciplinaryEvent
	for i := range m.events {
		e := m.events[i]
		if e.StudentID == studentID && e.AcademicYear == year && e.EventType == models.EventYearOpeningBalance {
			latest = &e
		}
	}
	return latest, nil
}

func (m *memoryStore) ExistsForDay(_ context.Context, studentID string, eventType models.DisciplinaryEventType, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChecksFor[studentID] {
		return false, errors.New("ledger unavailable")
	}
	for _, e := range m.events {
		if e.StudentID == studentID && e.EventType == eventType && e.OccurredOn.Equal(models.DateOnly(day)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ExistsForPeriod(_ context.Context, studentID string, eventType models.DisciplinaryEventType, year, period int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChecksFor[studentID] {
		return false, errors.New("ledger unavailable")
	}
	for _, e := range m.events {
		if e.StudentID == studentID && e.EventType == eventType && e.AcademicYear == year && e.PeriodNumber == period {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) LastNegativeOn(_ context.Context, studentID string, upTo time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChecksFor[studentID] {
		return nil, errors.New("ledger unavailable")
	}
	var last *time.Time
	for _, e := range m.events {
		if e.StudentID == studentID && e.Delta < 0 && !e.OccurredOn.After(models.DateOnly(upTo)) {
			if last == nil || e.OccurredOn.After(*last) {
				d := e.OccurredOn
				last = &d
			}
		}
	}
	return last, nil
}

func (m *memoryStore) HasNegativeBetween(_ context.Context, studentID string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.StudentID == studentID && e.Delta < 0 && !e.OccurredOn.Before(models.DateOnly(from)) && !e.OccurredOn.After(models.DateOnly(to)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) List(_ context.Context, filter models.DisciplinaryEventFilter) ([]models.DisciplinaryEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DisciplinaryEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].StudentID == filter.StudentID {
			out = append(out, m.events[i])
		}
	}
	return out, len(out), nil
}

// snapshots

func (m *memoryStore) GetOrCreate(_ context.Context, studentID string, year, period int) (*models.PeriodSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.snapshotLocked(studentID, year, period)
	copied := *snapshot
	return &copied, nil
}

func (m *memoryStore) snapshotLocked(studentID string, year, period int) *models.PeriodSnapshot {
	key := snapshotKey{studentID, year, period}
	if s, ok := m.snapshots[key]; ok {
		return s
	}
	opening := models.DefaultOpeningScore
	found := false
	for p := period - 1; p >= 1 && !found; p-- {
		if prev, ok := m.snapshots[snapshotKey{studentID, year, p}]; ok {
			opening, found = prev.CurrentScore, true
		}
	}
	if !found {
		for _, e := range m.events {
			if e.StudentID == studentID && e.AcademicYear == year && e.EventType == models.EventYearOpeningBalance {
				opening = e.Delta
			}
		}
	}
	s := &models.PeriodSnapshot{StudentID: studentID, AcademicYear: year, PeriodNumber: period, OpeningScore: opening, CurrentScore: opening}
	m.snapshots[key] = s
	return s
}

func (m *memoryStore) ApplyEvent(_ context.Context, event *models.DisciplinaryEvent) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failApplyFor[event.StudentID] {
		return 0, errors.New("transaction aborted")
	}
	snapshot := m.snapshotLocked(event.StudentID, event.AcademicYear, event.PeriodNumber)
	snapshot.CurrentScore = models.RoundScore(models.ClampScore(snapshot.CurrentScore + event.Delta))
	m.appendLocked(event)
	return snapshot.CurrentScore, nil
}

func (m *memoryStore) Overwrite(_ context.Context, studentID string, year, period int, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.snapshotLocked(studentID, year, period)
	snapshot.CurrentScore = score
	m.overwrites = append(m.overwrites, snapshotKey{studentID, year, period})
	return nil
}

func (m *memoryStore) LastOfYear(_ context.Context, studentID string, year int) (*models.PeriodSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.PeriodSnapshot
	for key, s := range m.snapshots {
		if key.student == studentID && key.year == year && (last == nil || s.PeriodNumber > last.PeriodNumber) {
			last = s
		}
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

// students

func (m *memoryStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) ListAll(_ context.Context) ([]models.Student, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) ListEnrolledBy(ctx context.Context, day time.Time) ([]models.Student, error) {
	all, _ := m.ListAll(ctx)
	var out []models.Student
	for _, s := range all {
		if s.EnrollmentDate == nil || !s.EnrollmentDate.After(models.DateOnly(day)) {
			out = append(out, s)
		}
	}
	return out, nil
}

// calendar

func (m *memoryStore) ListByYear(_ context.Context, year int) ([]models.AcademicPeriod, error) {
	var out []models.AcademicPeriod
	for _, p := range m.periods {
		if p.AcademicYear == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) ListBetweenYears(_ context.Context, fromYear, toYear int) ([]models.AcademicPeriod, error) {
	var out []models.AcademicPeriod
	for _, p := range m.periods {
		if p.AcademicYear >= fromYear && p.AcademicYear <= toYear {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) Find(_ context.Context, year, period int) (*models.AcademicPeriod, error) {
	for _, p := range m.periods {
		if p.AcademicYear == year && p.PeriodNumber == period {
			copied := p
			return &copied, nil
		}
	}
	return nil, nil
}

// averages

func (m *memoryStore) HistoryFor(_ context.Context, studentID string, fromYear, toYear int) (map[models.PeriodRef]float64, error) {
	out := make(map[models.PeriodRef]float64)
	for ref, avg := range m.averages[studentID] {
		if ref.AcademicYear >= fromYear && ref.AcademicYear <= toYear {
			out[ref] = avg
		}
	}
	return out, nil
}

func (m *memoryStore) AveragesFor(_ context.Context, studentIDs []string, year, period int) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range studentIDs {
		if avg, ok := m.averages[id][models.PeriodRef{AcademicYear: year, PeriodNumber: period}]; ok {
			out[id] = avg
		}
	}
	return out, nil
}

// measure config

func (m *memoryStore) All(_ context.Context) ([]models.MeasureSetting, error) {
	return m.settings, nil
}

// memoryCache is an in-memory CacheRepository.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newTestProjector(store *memoryStore) *ScoreProjector {
	resolver := NewPeriodResolver(store, nil)
	return NewScoreProjector(store, store, store, store, store, resolver, NewMetricsService(), nil)
}
