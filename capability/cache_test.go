package capability

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/adregistry/internal/cache"
	"github.com/BaSui01/adregistry/testutil"
	"github.com/BaSui01/adregistry/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryCache_Expiry(t *testing.T) {
	clock := testutil.NewFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewMemoryCache(15*time.Minute, clock.Now)
	ctx := context.Background()
	p := &Profile{AgentURL: "https://a.example"}

	c.Set(ctx, p.AgentURL, p)

	clock.Advance(14*time.Minute + 59*time.Second)
	got, ok := c.Get(ctx, p.AgentURL)
	require.True(t, ok)
	assert.Equal(t, p, got)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, p.AgentURL)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_DeleteAndPurge(t *testing.T) {
	clock := testutil.NewFixedClock(time.Now())
	c := NewMemoryCache(time.Minute, clock.Now)
	ctx := context.Background()

	c.Set(ctx, "a", &Profile{AgentURL: "a"})
	c.Set(ctx, "b", &Profile{AgentURL: "b"})
	c.Delete(ctx, "a")
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	clock.Advance(30 * time.Second)
	c.Set(ctx, "c", &Profile{AgentURL: "c"})
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, c.Purge())
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute, nil)
	ctx := context.Background()
	p := &Profile{
		AgentURL: "https://creative.example",
		Tools:    []string{"list_creative_formats"},
		Creative: &CreativeCapabilities{FormatsSupported: []string{"display_300x250"}},
	}
	c.Set(ctx, p.AgentURL, p)
	p.Creative.FormatsSupported[0] = "changed"

	first, ok := c.Get(ctx, p.AgentURL)
	require.True(t, ok)
	assert.NotSame(t, p, first)
	first.Tools[0] = "mutated"
	first.Creative.FormatsSupported = append(first.Creative.FormatsSupported, "video")

	second, ok := c.Get(ctx, p.AgentURL)
	require.True(t, ok)
	assert.Equal(t, []string{"list_creative_formats"}, second.Tools)
	assert.Equal(t, []string{"display_300x250"}, second.Creative.FormatsSupported)
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	c := NewMemoryCache(0, nil)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "adregistry:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	c := NewRedisCache(manager, 15*time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := c.Get(ctx, "https://a.example")
	assert.False(t, ok)

	p := buildProfile("https://a.example", types.ProtocolMCP, []string{"get_products"}, time.Now().UTC().Truncate(time.Second))
	c.Set(ctx, p.AgentURL, p)
	assert.True(t, mr.Exists("adregistry:capability:https://a.example"))
	assert.Equal(t, 15*time.Minute, mr.TTL("adregistry:capability:https://a.example"))

	got, ok := c.Get(ctx, p.AgentURL)
	require.True(t, ok)
	assert.Equal(t, p.Sales, got.Sales)
	assert.Equal(t, types.AgentTypeSales, InferTypeFromProfile(got))

	mr.FastForward(16 * time.Minute)
	_, ok = c.Get(ctx, p.AgentURL)
	assert.False(t, ok)

	c.Set(ctx, p.AgentURL, p)
	c.Delete(ctx, p.AgentURL)
	_, ok = c.Get(ctx, p.AgentURL)
	assert.False(t, ok)
}

func TestRedisCache_ClosedManagerIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	c := NewRedisCache(manager, 0, nil)
	c.Set(context.Background(), "u", &Profile{AgentURL: "u"})
	_, ok := c.Get(context.Background(), "u")
	assert.False(t, ok)
}
