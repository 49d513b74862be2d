package cache

import (
	"context"
	"errors"
	"github.com/tendermint/tendermint/libs/log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mockCache(t *testing.T) *QueryCache {
	c, err := New(16, log.NewNopLogger())
	if err != nil {
		t.Fatalf("Cache: %v", err)
	}
	return c
}

func counting(loads *int32, value interface{}) Loader {
	return func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(loads, 1)
		return value, nil
	}
}

func TestFetchMemoizes(t *testing.T) {
	c := mockCache(t)
	var loads int32
	for i := 0; i < 3; i++ {
		value, err := c.Fetch(context.Background(), ElectionKey("1"), counting(&loads, "council"))
		if err != nil || value != "council" {
			t.Fatalf("Fetch: %v, %v", value, err)
		}
	}
	if loads != 1 {
		t.Errorf("Loaded %d times", loads)
	}
}

func TestFetchErrorNotCached(t *testing.T) {
	c := mockCache(t)
	_, err := c.Fetch(context.Background(), ElectionsKey, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("unavailable")
	})
	if err == nil || c.Contains(ElectionsKey) {
		t.Errorf("Failed load cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := mockCache(t)
	var loads int32
	c.Fetch(context.Background(), ElectionKey("1"), counting(&loads, 1))
	c.Fetch(context.Background(), CandidateKey("2"), counting(&loads, 2))
	c.Invalidate(ElectionKey("1"))
	if c.Contains(ElectionKey("1")) || !c.Contains(CandidateKey("2")) {
		t.Errorf("Targeted invalidation wrong")
	}
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("Broad invalidation left %d entries", c.Len())
	}
}

func TestConcurrentFetchSharesLoad(t *testing.T) {
	c := mockCache(t)
	var loads int32
	release := make(chan struct{})
	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "value", nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Fetch(context.Background(), ElectionsKey, load)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("Loaded %d times", loads)
	}
}

func TestLoadOverlappingInvalidationNotStored(t *testing.T) {
	c := mockCache(t)
	value, _ := c.Fetch(context.Background(), ElectionsKey, func(ctx context.Context) (interface{}, error) {
		c.Invalidate(ElectionsKey)
		return "stale", nil
	})
	if value != "stale" {
		t.Errorf("Caller should still get the loaded value")
	}
	if c.Contains(ElectionsKey) {
		t.Errorf("Stale value stored")
	}
}

func TestHasVotedKeyIgnoresCase(t *testing.T) {
	if HasVotedKey("1", "2", "0xABC") != HasVotedKey("1", "2", "0xabc") {
		t.Errorf("Voter case should not matter")
	}
}
