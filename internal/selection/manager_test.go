package selection_test

import (
	"fmt"
	"sync"
	"testing"

	"curator/internal/selection"
)

func TestAddPreservesInsertionOrder(t *testing.T) {
	m := selection.NewManager()
	m.Add("s1", "c")
	m.Add("s1", "a")
	m.Add("s1", "b")

	got := m.Snapshot("s1")
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	m := selection.NewManager()
	m.Add("s1", "a")
	m.Add("s1", "b")
	m.Add("s1", "a")

	got := m.Snapshot("s1")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("duplicate add changed the selection: %v", got)
	}
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	m := selection.NewManager()
	m.Add("s1", "a")
	m.Remove("s1", "missing")
	m.Remove("other-session", "a")

	if got := m.Snapshot("s1"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("no-op removes changed selection: %v", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m := selection.NewManager()
	m.Add("s1", "a")
	m.Add("s2", "b")
	m.Clear("s1")

	if got := m.Snapshot("s1"); len(got) != 0 {
		t.Fatalf("expected s1 cleared, got %v", got)
	}
	if got := m.Snapshot("s2"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("s2 affected by s1 clear: %v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := selection.NewManager()
	m.Add("s1", "a")
	snap := m.Snapshot("s1")
	snap[0] = "mutated"

	if got := m.Snapshot("s1"); got[0] != "a" {
		t.Fatalf("snapshot mutation leaked into manager: %v", got)
	}
}

func TestConcurrentSessions(t *testing.T) {
	m := selection.NewManager()
	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(session int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", session)
			for i := 0; i < 100; i++ {
				m.Add(id, fmt.Sprintf("sample-%d", i))
			}
		}(s)
	}
	wg.Wait()

	for s := 0; s < 8; s++ {
		if n := m.Len(fmt.Sprintf("s%d", s)); n != 100 {
			t.Fatalf("session s%d expected 100 items, got %d", s, n)
		}
	}
}
