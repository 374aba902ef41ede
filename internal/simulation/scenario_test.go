package simulation

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/signalpool/internal/serum"
)

func newHarness(t *testing.T) *Harness {
	t.Helper()
	h, err := New(context.Background(), nil, DefaultParams())
	require.NoError(t, err)
	return h
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)
	steps, err := h.RoundTrip(DefaultRoundTrip())
	require.NoError(t, err)
	require.Len(t, steps, 7)

	byAction := make(map[string]Step, len(steps))
	for _, step := range steps {
		byAction[step.Action] = step
	}

	created := byAction["create"]
	assert.Equal(t, "unlocked", created.Status)
	assert.Equal(t, uint64(1_000_000), created.Supply)
	assert.True(t, created.ReferencePerShare.Equal(math.LegacyOneDec()))

	deposited := byAction["deposit"]
	assert.Equal(t, uint64(1_500_000), deposited.Supply)
	assert.Equal(t, uint64(1_500_000), deposited.Reference)
	assert.Equal(t, uint64(750_000), deposited.Asset)

	asked := byAction["ask"]
	assert.Contains(t, asked.Status, "pending_order")
	assert.Equal(t, uint64(375_000), asked.Asset)

	settled := byAction["settle"]
	assert.Equal(t, "unlocked", settled.Status)
	assert.Equal(t, uint64(1_575_000), settled.Reference)
	assert.Equal(t, uint64(375_000), settled.Asset)

	founderOut := byAction["redeem founder"]
	assert.Equal(t, uint64(500_000), founderOut.Supply)
	assert.Equal(t, uint64(525_000), founderOut.Reference)
	assert.Equal(t, uint64(125_000), founderOut.Asset)

	last := byAction["redeem investor"]
	assert.Equal(t, "uninitialized", last.Status)
	assert.Zero(t, last.Supply)
	assert.Zero(t, last.Reference)
	assert.Zero(t, last.Asset)
	assert.True(t, last.AssetPerShare.IsZero())
}

func TestCreateNeedsFundedFounder(t *testing.T) {
	h := newHarness(t)
	founder, err := h.NewUser(nil)
	require.NoError(t, err)
	require.Error(t, h.Create(founder, 1_000_000, 500_000))

	state, err := h.State()
	require.NoError(t, err)
	assert.False(t, state.Header.Status.IsInitialized())
	require.ErrorContains(t, h.PlaceOrder(serum.Ask, 2, 1<<15), "pool has not been created")
}
