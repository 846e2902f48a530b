package service_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/events"
	"github.com/rosterly/rosterly-backend/internal/scheduling/metrics"
	"github.com/rosterly/rosterly-backend/internal/scheduling/repository"
	"github.com/rosterly/rosterly-backend/internal/scheduling/service"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/rosterly/rosterly-backend/pkg/testutil"
)

// ============================================================================
// IN-MEMORY STORE
// ============================================================================

// memStore backs every store interface with maps guarded by one mutex.
// Conditional updates check their guard under the lock, like the SQL CAS.
type memStore struct {
	mu           sync.Mutex
	shifts       map[string]*domain.Shift
	assignments  map[string]*domain.Assignment
	availability []*domain.Availability
	links        map[string]map[string]bool
	hours        map[string]float64
	identities   map[string]domain.Identity
	seq          int
	createErr    error
}

func newMemStore() *memStore {
	return &memStore{
		shifts:      make(map[string]*domain.Shift),
		assignments: make(map[string]*domain.Assignment),
		links:       make(map[string]map[string]bool),
		hours:       make(map[string]float64),
		identities:  make(map[string]domain.Identity),
	}
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func (m *memStore) addShift(id, managerID, date, start, end string, required int) *domain.Shift {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.Shift{
		ID:                id,
		ManagerID:         managerID,
		ShiftDate:         day(date),
		StartTime:         start,
		EndTime:           end,
		RequiredHeadcount: required,
		FillStatus:        domain.FillUnstaffed,
	}
	m.shifts[id] = s
	return s
}

func (m *memStore) addAssignment(id, shiftID, employeeID string, status domain.AssignmentStatus) *domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift := m.shifts[shiftID]
	a := &domain.Assignment{
		ID:               id,
		ShiftID:          shiftID,
		EmployeeID:       employeeID,
		Status:           status,
		StartTime:        shift.StartTime,
		EndTime:          shift.EndTime,
		OwnershipHistory: domain.OwnershipHistory{},
	}
	m.assignments[id] = a
	return a
}

func (m *memStore) addAvailability(employeeID, date, start, end string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.availability = append(m.availability, &domain.Availability{
		ID:            fmt.Sprintf("av-%d", m.seq),
		EmployeeID:    employeeID,
		AvailableDate: day(date),
		StartTime:     start,
		EndTime:       end,
	})
}

func (m *memStore) link(managerID string, employeeIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[managerID] == nil {
		m.links[managerID] = make(map[string]bool)
	}
	for _, id := range employeeIDs {
		m.links[managerID][id] = true
	}
}

func (m *memStore) identity(id, first, last string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id] = domain.Identity{EmployeeID: id, FirstName: first, LastName: last}
}

func (m *memStore) setCachedHours(employeeID, weekStart string, hours float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[employeeID+"|"+weekStart] = hours
}

func (m *memStore) cachedHours(employeeID string, weekStart time.Time) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hours[employeeID+"|"+weekStart.Format(domain.DateLayout)]
	return h, ok
}

func (m *memStore) assignment(id string) domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.assignments[id]
}

func (m *memStore) shift(id string) domain.Shift {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.shifts[id]
}

func (m *memStore) assignmentsOf(shiftID string) []domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assignment
	for _, a := range m.assignments {
		if a.ShiftID == shiftID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out
}

// held counts non-cancelled assignments; caller holds mu
func (m *memStore) held(shiftID string) int {
	n := 0
	for _, a := range m.assignments {
		if a.ShiftID == shiftID && a.Status != domain.StatusCancelled {
			n++
		}
	}
	return n
}

func (m *memStore) shiftCopy(s *domain.Shift) *domain.Shift {
	c := *s
	c.AssignedCount = m.held(s.ID)
	return &c
}

func (m *memStore) joined(a *domain.Assignment) *domain.Assignment {
	c := *a
	s := m.shifts[a.ShiftID]
	c.ShiftDate = s.ShiftDate
	c.ManagerID = s.ManagerID
	c.ShiftStartTime = s.StartTime
	c.ShiftEndTime = s.EndTime
	return &c
}

// ============================================================================
// STORE VIEWS
// ============================================================================

type passthroughTx struct{}

func (passthroughTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type shiftView struct{ *memStore }

func (v shiftView) Get(ctx context.Context, id string) (*domain.Shift, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.shifts[id]
	if !ok {
		return nil, errors.NotFound("shift")
	}
	return v.shiftCopy(s), nil
}

func (v shiftView) GetForUpdate(ctx context.Context, id string) (*domain.Shift, error) {
	return v.Get(ctx, id)
}

func (v shiftView) ListUnderstaffed(ctx context.Context, managerID string, fromDate time.Time) ([]*domain.Shift, error) {
	all, _ := v.ListByManager(ctx, managerID, &fromDate)
	var out []*domain.Shift
	for _, s := range all {
		if s.AssignedCount < s.RequiredHeadcount {
			out = append(out, s)
		}
	}
	return out, nil
}

func (v shiftView) ListByManager(ctx context.Context, managerID string, fromDate *time.Time) ([]*domain.Shift, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*domain.Shift
	for _, s := range v.shifts {
		if s.ManagerID != managerID {
			continue
		}
		if fromDate != nil && s.ShiftDate.Before(*fromDate) {
			continue
		}
		out = append(out, v.shiftCopy(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ShiftDate.Equal(out[j].ShiftDate) {
			return out[i].ShiftDate.Before(out[j].ShiftDate)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (v shiftView) ListManagersWithShiftsOn(ctx context.Context, from, to time.Time) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range v.shifts {
		if s.ShiftDate.Before(from) || s.ShiftDate.After(to) || seen[s.ManagerID] {
			continue
		}
		seen[s.ManagerID] = true
		out = append(out, s.ManagerID)
	}
	sort.Strings(out)
	return out, nil
}

func (v shiftView) CountHeld(ctx context.Context, shiftID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held(shiftID), nil
}

func (v shiftView) UpdateFillStatus(ctx context.Context, shiftID string, status domain.FillStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.shifts[shiftID]
	if !ok {
		return errors.NotFound("shift")
	}
	s.FillStatus = status
	return nil
}

type assignmentView struct{ *memStore }

func (v assignmentView) GetWithShift(ctx context.Context, id string) (*domain.Assignment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.assignments[id]
	if !ok {
		return nil, errors.NotFound("assignment")
	}
	return v.joined(a), nil
}

func (v assignmentView) ListHeldOnDate(ctx context.Context, employeeIDs []string, date time.Time) ([]*domain.Assignment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	wanted := make(map[string]bool, len(employeeIDs))
	for _, id := range employeeIDs {
		wanted[id] = true
	}
	var out []*domain.Assignment
	for _, a := range v.assignments {
		if !wanted[a.EmployeeID] {
			continue
		}
		if a.Status != domain.StatusAssigned && a.Status != domain.StatusAvailable {
			continue
		}
		if !v.shifts[a.ShiftID].ShiftDate.Equal(date) {
			continue
		}
		out = append(out, v.joined(a))
	}
	return out, nil
}

func (v assignmentView) ListForLedger(ctx context.Context, employeeID string, from, to time.Time) ([]repository.LedgerEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []repository.LedgerEntry
	for _, a := range v.assignments {
		if a.EmployeeID != employeeID {
			continue
		}
		if a.Status != domain.StatusAssigned && a.Status != domain.StatusCompleted {
			continue
		}
		d := v.shifts[a.ShiftID].ShiftDate
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, repository.LedgerEntry{
			AssignmentID: a.ID,
			ShiftDate:    d,
			StartTime:    a.StartTime,
			EndTime:      a.EndTime,
		})
	}
	return out, nil
}

func (v assignmentView) Create(ctx context.Context, a *domain.Assignment) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return v.createErr
	}
	v.seq++
	a.ID = fmt.Sprintf("as-%d", v.seq)
	a.AssignedAt = time.Now()
	a.LastUpdated = a.AssignedAt
	c := *a
	v.assignments[a.ID] = &c
	return nil
}

func (v assignmentView) Release(ctx context.Context, id, employeeID, notes string, history domain.OwnershipHistory) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.assignments[id]
	if !ok || a.EmployeeID != employeeID || a.Status != domain.StatusAssigned {
		return false, nil
	}
	a.Status = domain.StatusAvailable
	a.Notes = &notes
	a.OwnershipHistory = history
	return true, nil
}

func (v assignmentView) Claim(ctx context.Context, id, prevEmployeeID, newEmployeeID, notes string, history domain.OwnershipHistory) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.assignments[id]
	if !ok || a.EmployeeID != prevEmployeeID || a.Status != domain.StatusAvailable {
		return false, nil
	}
	a.EmployeeID = newEmployeeID
	a.Status = domain.StatusAssigned
	a.Notes = &notes
	a.OwnershipHistory = history
	return true, nil
}

func (v assignmentView) Cancel(ctx context.Context, id, notes string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.assignments[id]
	if !ok || a.Status.IsTerminal() {
		return false, nil
	}
	a.Status = domain.StatusCancelled
	a.Notes = &notes
	return true, nil
}

func (v assignmentView) transition(from, to domain.AssignmentStatus, before time.Time, note *string) []repository.AssignmentRef {
	v.mu.Lock()
	defer v.mu.Unlock()
	var refs []repository.AssignmentRef
	for _, a := range v.assignments {
		d := v.shifts[a.ShiftID].ShiftDate
		if a.Status != from || !d.Before(before) {
			continue
		}
		a.Status = to
		if note != nil {
			n := domain.AppendNote(a.Notes, *note)
			a.Notes = &n
		}
		refs = append(refs, repository.AssignmentRef{ID: a.ID, ShiftID: a.ShiftID, EmployeeID: a.EmployeeID, ShiftDate: d})
	}
	return refs
}

func (v assignmentView) CompletePast(ctx context.Context, before time.Time) ([]repository.AssignmentRef, error) {
	return v.transition(domain.StatusAssigned, domain.StatusCompleted, before, nil), nil
}

func (v assignmentView) ExpireUnclaimed(ctx context.Context, before time.Time, note string) ([]repository.AssignmentRef, error) {
	return v.transition(domain.StatusAvailable, domain.StatusCancelled, before, &note), nil
}

type availabilityView struct{ *memStore }

func (v availabilityView) ListForManagerDates(ctx context.Context, managerID string, dates []time.Time) ([]*domain.Availability, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*domain.Availability
	for _, rec := range v.availability {
		if !v.links[managerID][rec.EmployeeID] {
			continue
		}
		for _, d := range dates {
			if rec.AvailableDate.Equal(d) {
				c := *rec
				out = append(out, &c)
				break
			}
		}
	}
	return out, nil
}

type linkView struct{ *memStore }

func (v linkView) IsActiveManagerOf(ctx context.Context, managerID, employeeID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.links[managerID][employeeID], nil
}

func (v linkView) ListActiveEmployees(ctx context.Context, managerID string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for id, active := range v.links[managerID] {
		if active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

type hoursView struct{ *memStore }

func (v hoursView) Get(ctx context.Context, employeeID string, weekStart time.Time) (*domain.WeeklyHoursRecord, error) {
	h, ok := v.cachedHours(employeeID, weekStart)
	if !ok {
		return nil, nil
	}
	return &domain.WeeklyHoursRecord{EmployeeID: employeeID, WeekStartDate: weekStart, TotalHours: h}, nil
}

func (v hoursView) Upsert(ctx context.Context, employeeID string, weekStart time.Time, hours float64) error {
	v.setCachedHours(employeeID, weekStart.Format(domain.DateLayout), hours)
	return nil
}

func (v hoursView) ListEmployeesToReconcile(ctx context.Context, from, to time.Time) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	suffix := "|" + from.Format(domain.DateLayout)
	for key := range v.hours {
		if id, ok := strings.CutSuffix(key, suffix); ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, a := range v.assignments {
		d := v.shifts[a.ShiftID].ShiftDate
		if d.Before(from) || d.After(to) || seen[a.EmployeeID] {
			continue
		}
		if a.Status != domain.StatusAssigned && a.Status != domain.StatusCompleted {
			continue
		}
		seen[a.EmployeeID] = true
		out = append(out, a.EmployeeID)
	}
	sort.Strings(out)
	return out, nil
}

type directoryView struct{ *memStore }

func (v directoryView) Get(ctx context.Context, employeeID string) (domain.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.identities[employeeID]; ok {
		return id, nil
	}
	return domain.Identity{EmployeeID: employeeID}, nil
}

// ============================================================================
// HARNESS
// ============================================================================

// fixedNow is a Wednesday; the ISO week starts on 2026-10-12
var fixedNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type harness struct {
	store       *memStore
	events      *testutil.MockPublisher
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	settings    service.Settings
	conflicts   *service.ConflictDetector
	fill        *service.FillService
	hours       *service.HoursLedger
	assignments *service.AssignmentService
	scheduler   *service.Scheduler
}

func newHarness(t *testing.T, opts ...func(*service.Settings)) *harness {
	t.Helper()

	settings := service.Settings{
		MaxWeeklyHours:       40,
		TransactionScope:     config.TransactionScopeShift,
		DiscrepancyThreshold: 0.1,
		Location:             time.UTC,
		Now:                  func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&settings)
	}

	h := &harness{
		store:    newMemStore(),
		events:   testutil.NewMockPublisher(),
		registry: prometheus.NewRegistry(),
		settings: settings,
	}
	log := logger.NewNop()
	h.metrics = metrics.New(config.MetricsConfig{Enabled: true, Namespace: "test"}, h.registry)
	publisher := events.NewPublisherWithSink(h.events, log)

	shifts := shiftView{h.store}
	assignments := assignmentView{h.store}
	links := linkView{h.store}

	h.conflicts = service.NewConflictDetector(assignments, log)
	h.fill = service.NewFillService(passthroughTx{}, shifts, log)
	h.hours = service.NewHoursLedger(assignments, hoursView{h.store}, links, settings, log)
	h.assignments = service.NewAssignmentService(
		passthroughTx{}, shifts, assignments, links, directoryView{h.store},
		h.conflicts, h.fill, h.hours, publisher, h.metrics, settings, log,
	)
	h.scheduler = service.NewScheduler(
		passthroughTx{}, shifts, availabilityView{h.store}, links,
		h.conflicts, h.hours, h.fill, h.assignments, publisher, h.metrics, settings, log,
	)

	return h
}
