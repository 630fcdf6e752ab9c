package llm

import (
	"fmt"
	"testing"
	"time"

	"github.com/hearthfire/hearth/internal/config"
)

func TestKeepAlivePerStrategy(t *testing.T) {
	tests := []struct {
		cacheType string
		want      string
	}{
		{"ram", "30m"},
		{"ssd", "2m"},
		{"none", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.cacheType, func(t *testing.T) {
			manager := NewCacheManager(&config.CacheConfig{Type: tt.cacheType, MaxModels: 3})
			if got := manager.KeepAlive(); got != tt.want {
				t.Fatalf("KeepAlive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLRUEviction(t *testing.T) {
	manager := NewCacheManager(&config.CacheConfig{Type: "ram", MaxModels: 3})

	manager.MarkUsed("model1")
	time.Sleep(2 * time.Millisecond)
	manager.MarkUsed("model2")
	time.Sleep(2 * time.Millisecond)
	manager.MarkUsed("model3")
	time.Sleep(2 * time.Millisecond)

	// model1 is now least recently used and must drop out
	manager.MarkUsed("model4")

	snapshot := manager.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 warm models, got %d", len(snapshot))
	}
	if manager.Warm("model1") {
		t.Fatal("expected model1 to be evicted")
	}
	for _, name := range []string{"model2", "model3", "model4"} {
		if !manager.Warm(name) {
			t.Fatalf("expected %s to remain warm", name)
		}
	}
}

func TestLRUSequenceEvictsPrefix(t *testing.T) {
	const k, n = 3, 4
	manager := NewCacheManager(&config.CacheConfig{Type: "ram", MaxModels: k})

	for i := 0; i < k+n; i++ {
		manager.MarkUsed(fmt.Sprintf("m%d", i))
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < n; i++ {
		if manager.Warm(fmt.Sprintf("m%d", i)) {
			t.Fatalf("expected m%d to be evicted", i)
		}
	}
	for i := n; i < k+n; i++ {
		if !manager.Warm(fmt.Sprintf("m%d", i)) {
			t.Fatalf("expected m%d to be warm", i)
		}
	}
}

func TestSSDBoundsWarmSetToOne(t *testing.T) {
	manager := NewCacheManager(&config.CacheConfig{Type: "ssd", MaxModels: 3})

	manager.MarkUsed("a")
	time.Sleep(time.Millisecond)
	manager.MarkUsed("b")

	if manager.Warm("a") {
		t.Fatal("ssd strategy must evict immediately on swap")
	}
	if !manager.Warm("b") {
		t.Fatal("expected most recent model to be warm")
	}
}

func TestNoneTracksNothing(t *testing.T) {
	manager := NewCacheManager(&config.CacheConfig{Type: "none"})
	manager.MarkUsed("a")
	if len(manager.Snapshot()) != 0 {
		t.Fatal("none strategy must not track models")
	}
}
