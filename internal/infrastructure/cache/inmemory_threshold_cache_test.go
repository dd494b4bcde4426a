package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

func sampleThresholds(t *testing.T) []approval.Threshold {
	t.Helper()
	th, err := approval.NewThreshold(
		document.TypeMaterialIssue,
		decimal.Zero,
		nil,
		"supervisor",
		4,
	)
	require.NoError(t, err)
	return []approval.Threshold{*th}
}

func TestInMemoryThresholdCache_MissThenHit(t *testing.T) {
	c := NewInMemoryThresholdCache(time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx)
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))

	require.NoError(t, c.Set(ctx, sampleThresholds(t)))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "supervisor", got[0].ApproverRole)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestInMemoryThresholdCache_TTLExpiry(t *testing.T) {
	c := NewInMemoryThresholdCache(time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleThresholds(t)))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx)
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))
}

func TestInMemoryThresholdCache_Invalidate(t *testing.T) {
	c := NewInMemoryThresholdCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleThresholds(t)))
	require.NoError(t, c.Invalidate(ctx))

	_, err := c.Get(ctx)
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))
}

func TestInMemoryThresholdCache_GetReturnsCopy(t *testing.T) {
	c := NewInMemoryThresholdCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleThresholds(t)))

	first, err := c.Get(ctx)
	require.NoError(t, err)
	first[0].ApproverRole = "tampered"

	second, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "supervisor", second[0].ApproverRole)
}
