package dedup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/storeberg/crosspost/internal/publish"
)

// memStore is an in-memory InsertIfAbsent with the same atomicity contract
// as the DynamoDB conditional put.
type memStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]time.Time)}
}

func (m *memStore) InsertIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.entries[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.entries[key] = time.Now().Add(ttl)
	return true, nil
}

func writeMedia(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestCompute_Deterministic(t *testing.T) {
	sub := publish.Submission{Title: "T", ProductURL: "https://x/y", StoreID: "s1"}
	path := writeMedia(t, "same bytes")

	fp1, err := Compute(sub, path)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	fp2, err := Compute(sub, path)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprint not deterministic: %s vs %s", fp1, fp2)
	}
}

func TestCompute_SensitiveToEachField(t *testing.T) {
	base := publish.Submission{Title: "T", ProductURL: "https://x/y", StoreID: "s1"}
	path := writeMedia(t, "same bytes")
	baseFP, _ := Compute(base, path)

	variants := []publish.Submission{
		{Title: "T2", ProductURL: "https://x/y", StoreID: "s1"},
		{Title: "T", ProductURL: "https://x/z", StoreID: "s1"},
		{Title: "T", ProductURL: "https://x/y", StoreID: "s2"},
	}
	for i, v := range variants {
		fp, _ := Compute(v, path)
		if fp == baseFP {
			t.Errorf("variant %d produced the same fingerprint", i)
		}
	}

	otherMedia := writeMedia(t, "different bytes")
	fp, _ := Compute(base, otherMedia)
	if fp == baseFP {
		t.Error("different media content produced the same fingerprint")
	}
}

func TestGuard_FirstUniqueThenDuplicate(t *testing.T) {
	g := NewGuard(newMemStore(), time.Minute)
	fp := Fingerprint("abc123")

	out, err := g.CheckAndRegister(context.Background(), fp)
	if err != nil || out != Unique {
		t.Fatalf("first check: got (%v, %v), want (Unique, nil)", out, err)
	}
	out, err = g.CheckAndRegister(context.Background(), fp)
	if err != nil || out != Duplicate {
		t.Fatalf("second check: got (%v, %v), want (Duplicate, nil)", out, err)
	}
}

func TestGuard_WindowExpiry(t *testing.T) {
	g := NewGuard(newMemStore(), 10*time.Millisecond)
	fp := Fingerprint("expiring")

	if out, _ := g.CheckAndRegister(context.Background(), fp); out != Unique {
		t.Fatal("expected first check unique")
	}
	time.Sleep(20 * time.Millisecond)
	if out, _ := g.CheckAndRegister(context.Background(), fp); out != Unique {
		t.Error("expected check after window expiry to be unique again")
	}
}

func TestGuard_ConcurrentSubmissions_AtMostOneUnique(t *testing.T) {
	g := NewGuard(newMemStore(), time.Minute)
	fp := Fingerprint("race")

	const n = 16
	var wg sync.WaitGroup
	uniques := make(chan Outcome, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := g.CheckAndRegister(context.Background(), fp)
			if err == nil {
				uniques <- out
			}
		}()
	}
	wg.Wait()
	close(uniques)

	uniqueCount := 0
	for out := range uniques {
		if out == Unique {
			uniqueCount++
		}
	}
	if uniqueCount != 1 {
		t.Errorf("expected exactly one Unique under concurrency, got %d", uniqueCount)
	}
}
