//go:build integration

package alerting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/posflow/internal/alerting"
	"github.com/joao-fontenele/posflow/internal/testutil"
)

func TestRedisDeduper(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rdb := testutil.SetupRedis(ctx, t)
	d := alerting.NewRedisDeduper(rdb, time.Minute)

	first, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := rdb.TTL(ctx, "pos:alert:seen:evt-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, d.Release(ctx, "evt-1"))

	reclaimed, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, reclaimed)
}
