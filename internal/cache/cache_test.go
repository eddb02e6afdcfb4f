package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/model"
)

func TestKey_NormalisedAndNamespaced(t *testing.T) {
	a := Key("evidence", "Acme outage ")
	b := Key("evidence", "acme outage")
	if a != b {
		t.Errorf("expected normalised keys to match: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "claimwatch:v1:evidence:") {
		t.Errorf("unexpected prefix: %s", a)
	}
	if Key("evidence", "a", "bc") == Key("evidence", "ab", "c") {
		t.Error("part boundaries must affect the key")
	}
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected hit with v, got %q %v", got, ok)
	}
	_ = c.Delete(ctx, "k")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestDiskCache_ExpiryAndPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := NewDiskCache(dir, time.Hour)
	if err := c.Set(ctx, Key("evidence", "x"), []byte("payload"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened := NewDiskCache(dir, time.Hour)
	got, ok := reopened.Get(ctx, Key("evidence", "x"))
	if !ok || string(got) != "payload" {
		t.Fatalf("expected persisted value, got %q %v", got, ok)
	}

	if err := c.Set(ctx, "short", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("expected expired entry to miss")
	}

	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	disk := NewDiskCache(dir, time.Hour)
	_ = disk.Set(ctx, "k", []byte("from-disk"), 0)

	layered := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := layered.Get(ctx, "k")
	if !ok || string(got) != "from-disk" {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}

	// remove the file; the promoted memory entry still serves
	_ = disk.Delete(ctx, "k")
	if _, ok := layered.Get(ctx, "k"); !ok {
		t.Error("expected promoted memory hit")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	in := []model.EvidenceItem{{Title: "t", Snippet: "s", URL: "https://example.com"}}
	if err := SetJSON(ctx, c, "ev", in, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var out []model.EvidenceItem
	if !GetJSON(ctx, c, "ev", &out) {
		t.Fatal("expected GetJSON hit")
	}
	if len(out) != 1 || out[0].URL != "https://example.com" {
		t.Errorf("unexpected round trip: %+v", out)
	}
}

func TestNew_DisabledAndDirectory(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, model.CacheConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(Noop); !ok {
		t.Errorf("expected Noop cache, got %T", c)
	}

	cfg := model.CacheConfig{Enabled: true, Dir: t.TempDir(), MemoryTTL: time.Minute, DiskTTL: time.Hour}
	c, err = New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LayeredCache); !ok {
		t.Errorf("expected layered cache, got %T", c)
	}
}

func TestRedisCache_NilIsDisabled(t *testing.T) {
	var c *RedisCache
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("nil cache must miss")
	}
	if err := c.Set(context.Background(), "k", nil, 0); err != ErrCacheDisabled {
		t.Errorf("expected ErrCacheDisabled, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache should be a no-op, got %v", err)
	}
}
