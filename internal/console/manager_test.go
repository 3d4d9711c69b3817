package console

import (
	"errors"
	"testing"
	"time"
)

func TestManagerCreateAndGet(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Minute)
	created := m.Create("en-US", "alloy")
	if created.ID == "" {
		t.Fatalf("expected generated console ID")
	}
	if created.Status != StatusActive {
		t.Fatalf("status = %q, want active", created.Status)
	}

	got, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Language != "en-US" || got.Voice != "alloy" {
		t.Fatalf("unexpected console: %+v", got)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerGetReturnsCopy(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Minute)
	created := m.Create("en-US", "")

	got, _ := m.Get(created.ID)
	got.Status = StatusEnded

	again, _ := m.Get(created.ID)
	if again.Status != StatusActive {
		t.Fatalf("mutating a returned console leaked into the registry")
	}
}

func TestManagerEnd(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Minute)
	created := m.Create("en-US", "")

	ended, err := m.End(created.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("status = %q, want ended", ended.Status)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}

	if _, err := m.End("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerTouchExtendsLifetime(t *testing.T) {
	t.Parallel()

	m := NewManager(50 * time.Millisecond)
	created := m.Create("en-US", "")

	time.Sleep(30 * time.Millisecond)
	if err := m.Touch(created.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	m.expireInactive()
	got, _ := m.Get(created.ID)
	if got.Status != StatusActive {
		t.Fatalf("touched console expired early")
	}
}

func TestManagerExpireInvokesHook(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Nanosecond)
	expired := make(chan string, 1)
	m.SetExpireHook(func(c *Console) { expired <- c.ID })

	created := m.Create("en-US", "")
	time.Sleep(time.Millisecond)
	m.expireInactive()

	select {
	case id := <-expired:
		if id != created.ID {
			t.Fatalf("hook fired for %q, want %q", id, created.ID)
		}
	default:
		t.Fatalf("expire hook did not fire")
	}

	got, _ := m.Get(created.ID)
	if got.Status != StatusEnded {
		t.Fatalf("expired console still active")
	}

	// A second sweep must not fire the hook again.
	m.expireInactive()
	select {
	case <-expired:
		t.Fatalf("hook fired twice for the same console")
	default:
	}
}
