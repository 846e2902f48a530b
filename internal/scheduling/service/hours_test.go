package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedWeek gives alice an 8h and a 6h shift in the week of 2026-10-12, plus
// assignments that must not count
func seedWeek(h *harness) {
	h.store.addShift("s-mon", "m-1", "2026-10-12", "09:00:00", "17:00:00", 1)
	h.store.addAssignment("a-mon", "s-mon", "alice", domain.StatusCompleted)
	h.store.addShift("s-fri", "m-1", "2026-10-16", "08:00:00", "14:00:00", 1)
	h.store.addAssignment("a-fri", "s-fri", "alice", domain.StatusAssigned)

	h.store.addShift("s-sat", "m-1", "2026-10-17", "10:00:00", "14:00:00", 2)
	h.store.addAssignment("a-sat", "s-sat", "alice", domain.StatusAvailable)
	h.store.addAssignment("a-sat2", "s-sat", "alice", domain.StatusCancelled)

	// next week
	h.store.addShift("s-next", "m-1", "2026-10-19", "09:00:00", "17:00:00", 1)
	h.store.addAssignment("a-next", "s-next", "alice", domain.StatusAssigned)
}

func TestHoursLedger_ActualWeeklyHours(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)

	hours, err := h.hours.ActualWeeklyHours(context.Background(), "alice", day("2026-10-12"))
	require.NoError(t, err)
	assert.Equal(t, 14.0, hours)

	// Any day of the week resolves to the same bucket.
	hours, err = h.hours.ActualWeeklyHours(context.Background(), "alice", day("2026-10-18"))
	require.NoError(t, err)
	assert.Equal(t, 14.0, hours)
}

func TestHoursLedger_Summary(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.setCachedHours("alice", "2026-10-12", 10)

	summary, err := h.hours.Summary(context.Background(), "alice", day("2026-10-14"))
	require.NoError(t, err)

	assert.Equal(t, "2026-10-12", summary.WeekStart)
	assert.Equal(t, "2026-10-18", summary.WeekEnd)
	assert.Equal(t, 10.0, summary.CachedHours)
	assert.Equal(t, 14.0, summary.ActualHours)
	assert.Equal(t, 4.0, summary.Discrepancy)
	assert.True(t, summary.HasDiscrepancy)
	assert.Equal(t, 26.0, summary.RemainingHours)
	assert.Equal(t, 2, summary.ShiftCount)
}

func TestHoursLedger_SummaryWithinThreshold(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.setCachedHours("alice", "2026-10-12", 14.05)

	summary, err := h.hours.Summary(context.Background(), "alice", day("2026-10-12"))
	require.NoError(t, err)
	assert.Equal(t, 0.05, summary.Discrepancy)
	assert.False(t, summary.HasDiscrepancy)
}

func TestHoursLedger_Reconcile(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.setCachedHours("alice", "2026-10-12", 10)

	summary, err := h.hours.Reconcile(context.Background(), "alice", day("2026-10-15"))
	require.NoError(t, err)
	assert.Equal(t, 14.0, summary.CachedHours)
	assert.False(t, summary.HasDiscrepancy)

	cached, err := h.hours.CachedWeeklyHours(context.Background(), "alice", day("2026-10-12"))
	require.NoError(t, err)
	assert.Equal(t, 14.0, cached)
}

func TestHoursLedger_ReconcileWeek(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.addAssignment("b-mon", "s-mon", "bob", domain.StatusAssigned)

	n, err := h.hours.ReconcileWeek(context.Background(), day("2026-10-14"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cached, _ := h.store.cachedHours("alice", day("2026-10-12"))
	assert.Equal(t, 14.0, cached)
	cached, _ = h.store.cachedHours("bob", day("2026-10-12"))
	assert.Equal(t, 8.0, cached)
}

func TestHoursLedger_ReconcileWeek_CorrectsCacheWithNoHoursLeft(t *testing.T) {
	h := newHarness(t)
	h.store.addShift("s-mon", "m-1", "2026-10-12", "09:00:00", "17:00:00", 1)
	h.store.addAssignment("c-mon", "s-mon", "carol", domain.StatusCancelled)
	h.store.setCachedHours("carol", "2026-10-12", 8)

	n, err := h.hours.ReconcileWeek(context.Background(), day("2026-10-14"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cached, ok := h.store.cachedHours("carol", day("2026-10-12"))
	require.True(t, ok)
	assert.Equal(t, 0.0, cached)

	summary, err := h.hours.Summary(context.Background(), "carol", day("2026-10-12"))
	require.NoError(t, err)
	assert.False(t, summary.HasDiscrepancy)
}

func TestHoursLedger_CanWorkAdditional(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)

	tests := []struct {
		name    string
		start   string
		end     string
		canWork bool
		total   float64
	}{
		{name: "well under the cap", start: "09:00", end: "17:00", canWork: true, total: 22},
		{name: "long day under the cap", start: "00:00", end: "23:59", canWork: true, total: 37.98},
		{name: "over the cap", start: "09:00", end: "17:00", canWork: false, total: 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.canWork {
				// push alice to 40h before asking
				h.store.addShift("s-tue", "m-1", "2026-10-13", "00:00:00", "23:00:00", 1)
				h.store.addAssignment("a-tue", "s-tue", "alice", domain.StatusAssigned)
				h.store.addShift("s-wed", "m-1", "2026-10-14", "20:00:00", "23:00:00", 1)
				h.store.addAssignment("a-wed", "s-wed", "alice", domain.StatusAssigned)
			}

			w, err := domain.ParseWindow(tt.start, tt.end)
			require.NoError(t, err)

			check, err := h.hours.CanWorkAdditional(context.Background(), "alice", day("2026-10-15"), w)
			require.NoError(t, err)
			assert.Equal(t, tt.canWork, check.CanWork)
			assert.Equal(t, tt.total, check.TotalAfterShift)
			assert.Equal(t, "2026-10-12", check.WeekStart)
			assert.Equal(t, 40.0, check.MaxHours)
		})
	}
}

func TestHoursLedger_CanWorkAdditionalAtTheCap(t *testing.T) {
	h := newHarness(t)
	// 32 hours already
	for i, date := range []string{"2026-10-12", "2026-10-13", "2026-10-14", "2026-10-15"} {
		id := string(rune('a' + i))
		h.store.addShift("s-"+id, "m-1", date, "09:00:00", "17:00:00", 1)
		h.store.addAssignment("a-"+id, "s-"+id, "alice", domain.StatusAssigned)
	}

	w, err := domain.ParseWindow("09:00", "17:00")
	require.NoError(t, err)

	check, err := h.hours.CanWorkAdditional(context.Background(), "alice", day("2026-10-16"), w)
	require.NoError(t, err)
	assert.True(t, check.CanWork)
	assert.Equal(t, 40.0, check.TotalAfterShift)
	assert.Equal(t, 8.0, check.RemainingHours)
}

func TestHoursLedger_TeamSummary(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.link("m-1", "alice", "bob")

	all, err := h.hours.TeamSummary(context.Background(), "m-1", day("2026-10-12"), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].EmployeeID)
	assert.Equal(t, 26.0, all[0].RemainingHours)
	assert.Equal(t, 40.0, all[1].RemainingHours)

	minimum := 30.0
	filtered, err := h.hours.TeamSummary(context.Background(), "m-1", day("2026-10-12"), &minimum)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "bob", filtered[0].EmployeeID)
}

func TestHoursLedger_MonthlyLoad(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.setCachedHours("alice", "2026-10-12", 14)

	load, err := h.hours.MonthlyLoad(context.Background(), "alice", 2026, time.October)
	require.NoError(t, err)

	require.Len(t, load.Weeks, 5)
	assert.Equal(t, "2026-09-28", load.Weeks[0].WeekStart)
	assert.Equal(t, 22.0, load.TotalActualHours)
	assert.Equal(t, 14.0, load.TotalCachedHours)
	assert.Equal(t, 3, load.TotalShifts)
	assert.Equal(t, 2, load.WeeksWithHours)
	assert.Equal(t, 11.0, load.AverageWeeklyHours)
}

func TestHoursLedger_ManagedViewsRequireTeam(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	h.store.link("m-1", "alice")
	ctx := context.Background()

	summary, err := h.hours.ManagedSummary(ctx, "m-1", "alice", day("2026-10-12"))
	require.NoError(t, err)
	assert.Equal(t, 14.0, summary.ActualHours)

	_, err = h.hours.ManagedSummary(ctx, "m-2", "alice", day("2026-10-12"))
	assert.True(t, errors.Is(err, errors.ErrForbidden))

	_, err = h.hours.ManagedMonthlyLoad(ctx, "m-2", "alice", 2026, time.October)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}
