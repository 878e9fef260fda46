package credentials

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCache_EmptyByDefault(t *testing.T) {
	c := NewCache()

	creds, ok := c.Get()
	if ok {
		t.Error("Get() ok = true on empty cache")
	}
	if creds != (Credentials{}) {
		t.Errorf("Get() = %+v, want zero value", creds)
	}
}

func TestCache_SetAndGet(t *testing.T) {
	c := NewCache()
	now := time.Now()

	if err := c.Set(Credentials{Cookie: "A=1", Crumb: "abc", ObtainedAt: now}); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}

	creds, ok := c.Get()
	if !ok {
		t.Fatal("Get() ok = false after Set")
	}
	if creds.Cookie != "A=1" {
		t.Errorf("Cookie = %q, want %q", creds.Cookie, "A=1")
	}
	if creds.Crumb != "abc" {
		t.Errorf("Crumb = %q, want %q", creds.Crumb, "abc")
	}
	if !creds.ObtainedAt.Equal(now) {
		t.Errorf("ObtainedAt = %v, want %v", creds.ObtainedAt, now)
	}
}

func TestCache_SetRejectsPartial(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"cookie only", Credentials{Cookie: "A=1"}},
		{"crumb only", Credentials{Crumb: "abc"}},
		{"neither", Credentials{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			if err := c.Set(Credentials{Cookie: "old", Crumb: "old"}); err != nil {
				t.Fatalf("Set() returned unexpected error: %v", err)
			}

			if err := c.Set(tt.creds); !errors.Is(err, ErrIncomplete) {
				t.Errorf("Set() error = %v, want %v", err, ErrIncomplete)
			}

			creds, ok := c.Get()
			if !ok || creds.Cookie != "old" {
				t.Errorf("Get() = %+v, %v; stored value must be untouched", creds, ok)
			}
		})
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache()
	if err := c.Set(Credentials{Cookie: "A=1", Crumb: "abc"}); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}

	c.Invalidate()

	if _, ok := c.Get(); ok {
		t.Error("Get() ok = true after Invalidate")
	}
}

func TestCache_ConcurrentReadersSeeMatchingPairs(t *testing.T) {
	c := NewCache()
	if err := c.Set(Credentials{Cookie: "cookie-0", Crumb: "crumb-0"}); err != nil {
		t.Fatalf("Set() returned unexpected error: %v", err)
	}

	const writes = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				creds, ok := c.Get()
				if !ok {
					continue
				}
				var a, b int
				fmt.Sscanf(creds.Cookie, "cookie-%d", &a)
				fmt.Sscanf(creds.Crumb, "crumb-%d", &b)
				if a != b {
					t.Errorf("torn read: cookie %q with crumb %q", creds.Cookie, creds.Crumb)
					return
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		err := c.Set(Credentials{
			Cookie: fmt.Sprintf("cookie-%d", i),
			Crumb:  fmt.Sprintf("crumb-%d", i),
		})
		if err != nil {
			t.Fatalf("Set() returned unexpected error: %v", err)
		}
	}
	close(done)
	wg.Wait()
}
