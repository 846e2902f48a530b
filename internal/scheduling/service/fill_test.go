package service_test

import (
	"context"
	"testing"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillService_Get(t *testing.T) {
	h := newHarness(t)
	h.store.addShift("s-1", "m-1", "2026-10-16", "09:00:00", "17:00:00", 3)
	h.store.addAssignment("a-1", "s-1", "alice", domain.StatusAssigned)

	fill, err := h.fill.Get(context.Background(), "m-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FillUnstaffed, fill.CachedStatus)
	assert.Equal(t, domain.FillPartiallyStaffed, fill.Status)
	assert.Equal(t, 33.3, fill.FillPercentage)

	// Reads never write.
	assert.Equal(t, domain.FillUnstaffed, h.store.shift("s-1").FillStatus)

	_, err = h.fill.Get(context.Background(), "m-2", "s-1")
	assert.True(t, errors.Is(err, errors.ErrForbidden))

	_, err = h.fill.Get(context.Background(), "m-1", "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFillService_Recompute(t *testing.T) {
	h := newHarness(t)
	h.store.addShift("s-1", "m-1", "2026-10-16", "09:00:00", "17:00:00", 1)
	h.store.addAssignment("a-1", "s-1", "alice", domain.StatusAvailable)
	h.store.addAssignment("a-2", "s-1", "bob", domain.StatusCancelled)

	change, err := h.fill.Recompute(context.Background(), "m-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FillUnstaffed, change.PreviousStatus)
	assert.Equal(t, domain.FillFullyStaffed, change.Status)
	assert.True(t, change.Changed)
	assert.Equal(t, 1, change.AssignedCount)
	assert.Equal(t, domain.FillFullyStaffed, h.store.shift("s-1").FillStatus)

	again, err := h.fill.Recompute(context.Background(), "m-1", "s-1")
	require.NoError(t, err)
	assert.False(t, again.Changed)

	_, err = h.fill.Recompute(context.Background(), "m-2", "s-1")
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestFillService_RecomputeAll(t *testing.T) {
	h := newHarness(t)
	h.store.addShift("s-1", "m-1", "2026-10-16", "09:00:00", "17:00:00", 2)
	h.store.addAssignment("a-1", "s-1", "alice", domain.StatusAssigned)
	h.store.addShift("s-2", "m-1", "2026-10-17", "09:00:00", "17:00:00", 1)
	h.store.addShift("s-3", "m-2", "2026-10-17", "09:00:00", "17:00:00", 1)

	changes, err := h.fill.RecomputeAll(context.Background(), "m-1")
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "s-1", changes[0].ShiftID)
	assert.Equal(t, domain.FillPartiallyStaffed, changes[0].Status)
	assert.True(t, changes[0].Changed)
	assert.Equal(t, "s-2", changes[1].ShiftID)
	assert.Equal(t, domain.FillUnstaffed, changes[1].Status)
	assert.False(t, changes[1].Changed)
}
