package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshmon/config"
)

func TestShouldPollGating(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	if !c.ShouldPoll("feed", time.Hour) {
		t.Fatal("never-polled key should be due")
	}
	c.RecordPoll("feed")
	if c.ShouldPoll("feed", time.Hour) {
		t.Error("just-polled key should not be due")
	}

	now = now.Add(time.Hour)
	if !c.ShouldPoll("feed", time.Hour) {
		t.Error("key should be due after the interval")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Put("k", "value", time.Minute)
	if v, ok := c.Get("k"); !ok || v != "value" {
		t.Fatalf("Get = %v, %v; want value, true", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should be gone")
	}
}

func TestCacheNonPositiveTTLIsAlreadyExpired(t *testing.T) {
	c := NewCache()
	c.Put("zero", "v", 0)
	if _, ok := c.Get("zero"); ok {
		t.Error("ttl 0 should be expired immediately")
	}
	c.Put("neg", "v", -time.Second)
	if _, ok := c.Get("neg"); ok {
		t.Error("negative ttl should be expired immediately")
	}
}

func TestDetectChange(t *testing.T) {
	c := NewCache()

	isNew, isChanged := c.DetectChange("k", map[string]int{"a": 1})
	if !isNew || isChanged {
		t.Errorf("first sight = (%v, %v), want (true, false)", isNew, isChanged)
	}

	isNew, isChanged = c.DetectChange("k", map[string]int{"a": 1})
	if isNew || isChanged {
		t.Errorf("identical value = (%v, %v), want (false, false)", isNew, isChanged)
	}

	isNew, isChanged = c.DetectChange("k", map[string]int{"a": 2})
	if isNew || !isChanged {
		t.Errorf("changed value = (%v, %v), want (false, true)", isNew, isChanged)
	}
}

// --- Runner tests ---

type scriptedFetcher struct {
	batches [][]Item
	errs    []error
	calls   int
}

func (s *scriptedFetcher) Fetch(_ context.Context) ([]Item, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

func TestRunnerDiscardsInitialItems(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	var announced []Item
	r := NewRunner(cache, func(_ config.SourceConfig, item Item, _ bool) {
		announced = append(announced, item)
	})
	fetcher := &scriptedFetcher{batches: [][]Item{
		{{ID: "1", Title: "old news"}},
		{{ID: "1", Title: "old news"}, {ID: "2", Title: "fresh"}},
	}}
	r.Add(&Source{
		Cfg:     config.SourceConfig{ID: "feed", CheckInterval: time.Hour},
		Fetcher: fetcher,
	})

	r.Poll(context.Background())
	if len(announced) != 0 {
		t.Fatalf("initial items announced: %v", announced)
	}

	now = now.Add(time.Hour)
	r.Poll(context.Background())
	if len(announced) != 1 || announced[0].ID != "2" {
		t.Errorf("announced = %v, want only item 2", announced)
	}
}

func TestRunnerAnnouncesChangedItems(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	var news, changes int
	r := NewRunner(cache, func(_ config.SourceConfig, _ Item, isNew bool) {
		if isNew {
			news++
		} else {
			changes++
		}
	})
	fetcher := &scriptedFetcher{batches: [][]Item{
		{{ID: "1", Title: "v1"}},
		{{ID: "1", Title: "v2"}},
	}}
	r.Add(&Source{Cfg: config.SourceConfig{ID: "feed", CheckInterval: time.Hour}, Fetcher: fetcher})

	r.Poll(context.Background())
	now = now.Add(time.Hour)
	r.Poll(context.Background())
	if news != 0 || changes != 1 {
		t.Errorf("news=%d changes=%d, want 0/1", news, changes)
	}
}

func TestRunnerFetchErrorRetriesNextInterval(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	var announced int
	r := NewRunner(cache, func(config.SourceConfig, Item, bool) { announced++ })
	fetcher := &scriptedFetcher{
		errs:    []error{errors.New("timeout"), nil, nil},
		batches: [][]Item{nil, {{ID: "1"}}, {{ID: "1"}, {ID: "2"}}},
	}
	r.Add(&Source{Cfg: config.SourceConfig{ID: "feed", CheckInterval: time.Hour}, Fetcher: fetcher})

	r.Poll(context.Background()) // error, swallowed
	now = now.Add(time.Hour)
	r.Poll(context.Background()) // first successful fetch, discarded
	now = now.Add(time.Hour)
	r.Poll(context.Background()) // item 2 is new
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
	if announced != 1 {
		t.Errorf("announced = %d, want 1", announced)
	}
}

func TestRunnerHonorsPollGate(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	r := NewRunner(cache, func(config.SourceConfig, Item, bool) {})
	fetcher := &scriptedFetcher{}
	r.Add(&Source{Cfg: config.SourceConfig{ID: "feed", CheckInterval: time.Hour}, Fetcher: fetcher})

	r.Poll(context.Background())
	r.Poll(context.Background()) // within the interval, no fetch
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
}
