package ratelimit

import (
	"testing"
	"time"
)

func TestSlidingWindow_AllowsUpToMax(t *testing.T) {
	l := NewSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		res := l.Check("k")
		if !res.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
		if res.Remaining != 3-i-1 {
			t.Errorf("check %d: remaining = %d, want %d", i, res.Remaining, 3-i-1)
		}
	}

	res := l.Check("k")
	if res.Allowed {
		t.Fatal("fourth check should be blocked")
	}
	if res.ResetMs <= 0 || res.ResetMs > time.Minute.Milliseconds() {
		t.Errorf("resetMs = %d, want (0, 60000]", res.ResetMs)
	}
}

func TestSlidingWindow_KeysAreIndependent(t *testing.T) {
	l := NewSlidingWindow(1, time.Minute)

	if !l.Check("a").Allowed {
		t.Fatal("first key should be allowed")
	}
	if !l.Check("b").Allowed {
		t.Fatal("second key should be allowed")
	}
	if l.Check("a").Allowed {
		t.Fatal("first key should now be blocked")
	}
}

func TestSlidingWindow_ExpiryFreesSlots(t *testing.T) {
	l := NewSlidingWindow(2, time.Minute)

	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	l.Check("k")
	l.Check("k")
	if l.Check("k").Allowed {
		t.Fatal("window full, check should block")
	}

	current = current.Add(61 * time.Second)
	res := l.Check("k")
	if !res.Allowed {
		t.Fatal("expired entries should have been dropped")
	}
	if got := l.Pending("k"); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}

func TestSlidingWindow_ResetMsTracksOldest(t *testing.T) {
	l := NewSlidingWindow(1, time.Minute)

	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	l.Check("k")
	current = current.Add(20 * time.Second)

	res := l.Check("k")
	if res.Allowed {
		t.Fatal("expected blocked")
	}
	if want := (40 * time.Second).Milliseconds(); res.ResetMs != want {
		t.Errorf("resetMs = %d, want %d", res.ResetMs, want)
	}
}
