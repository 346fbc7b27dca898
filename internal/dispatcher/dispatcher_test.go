package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"task_reminders/internal/domain"
	"task_reminders/internal/queue"
	"task_reminders/internal/registry"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakeConn) Push(msg []byte) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs
}

type fakeMarker struct {
	err   error
	calls []int64
}

func (m *fakeMarker) MarkNotified(_ context.Context, id int64, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, id)
	return nil
}

func validBody(t *testing.T, taskID, userID int64, title string) []byte {
	t.Helper()
	b, err := json.Marshal(domain.ReminderMessage{
		TaskID:    taskID,
		UserID:    userID,
		TaskTitle: title,
		DueDate:   time.Now().UTC().Add(-time.Minute),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestMalformedMessageIsPoison(t *testing.T) {
	marker := &fakeMarker{}
	d := New(nil, registry.New(), marker)

	err := d.Handle(context.Background(), []byte("{not json"))
	if !errors.Is(err, queue.ErrPoison) {
		t.Fatalf("expected poison error, got %v", err)
	}
	if len(marker.calls) != 0 {
		t.Fatal("poison message must not touch the store")
	}
}

func TestMessageMissingIDsIsPoison(t *testing.T) {
	marker := &fakeMarker{}
	d := New(nil, registry.New(), marker)

	err := d.Handle(context.Background(), []byte(`{"taskTitle":"x"}`))
	if !errors.Is(err, queue.ErrPoison) {
		t.Fatalf("expected poison error, got %v", err)
	}
}

func TestFanOutToAllUserConnections(t *testing.T) {
	reg := registry.New()
	conns := []*fakeConn{{}, {}, {}}
	reg.Add(10, "c1", conns[0])
	reg.Add(10, "c2", conns[1])
	reg.Add(10, "c3", conns[2])

	marker := &fakeMarker{}
	d := New(nil, reg, marker)

	if err := d.Handle(context.Background(), validBody(t, 1, 10, "write report")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	for i, c := range conns {
		got := c.received()
		if len(got) != 1 {
			t.Fatalf("connection %d: expected 1 notification, got %d", i, len(got))
		}
		var n domain.Notification
		if err := json.Unmarshal(got[0], &n); err != nil {
			t.Fatalf("connection %d payload: %v", i, err)
		}
		if n.Type != domain.EventTaskNotification {
			t.Fatalf("unexpected event type %q", n.Type)
		}
		if n.TaskID != 1 || n.TaskTitle != "write report" {
			t.Fatalf("unexpected payload: %+v", n)
		}
		if n.Message != "Task 'write report' is overdue!" {
			t.Fatalf("unexpected message string %q", n.Message)
		}
	}

	if len(marker.calls) != 1 || marker.calls[0] != 1 {
		t.Fatalf("expected task 1 marked once, got %v", marker.calls)
	}
}

func TestNoCrossUserLeakage(t *testing.T) {
	reg := registry.New()
	connA := &fakeConn{}
	connB := &fakeConn{}
	reg.Add(10, "a", connA)
	reg.Add(20, "b", connB)

	d := New(nil, reg, &fakeMarker{})

	if err := d.Handle(context.Background(), validBody(t, 1, 10, "private")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(connA.received()) != 1 {
		t.Fatalf("owner expected 1 notification, got %d", len(connA.received()))
	}
	if len(connB.received()) != 0 {
		t.Fatal("notification leaked to another user's connection")
	}
}

// A user with no live session is terminal success: no error, no requeue, and
// the task still gets marked so the scanner will not re-emit it.
func TestDisconnectedUserStillMarksTask(t *testing.T) {
	marker := &fakeMarker{}
	d := New(nil, registry.New(), marker)

	if err := d.Handle(context.Background(), validBody(t, 5, 99, "nobody home")); err != nil {
		t.Fatalf("expected success for disconnected user, got %v", err)
	}
	if len(marker.calls) != 1 || marker.calls[0] != 5 {
		t.Fatalf("expected task 5 marked, got %v", marker.calls)
	}
}

func TestStoreFailureRequeues(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{}
	reg.Add(10, "c", conn)

	marker := &fakeMarker{err: errors.New("store down")}
	d := New(nil, reg, marker)

	err := d.Handle(context.Background(), validBody(t, 1, 10, "report"))
	if err == nil {
		t.Fatal("expected error when the store write fails")
	}
	if errors.Is(err, queue.ErrPoison) {
		t.Fatal("store failure must requeue, not drop")
	}
}

func TestIdempotentRedelivery(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{}
	reg.Add(10, "c", conn)

	marker := &fakeMarker{}
	d := New(nil, reg, marker)

	body := validBody(t, 1, 10, "report")
	if err := d.Handle(context.Background(), body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := d.Handle(context.Background(), body); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	// re-marking is harmless, the duplicate push is a tolerated UI nuisance
	if len(marker.calls) != 2 {
		t.Fatalf("expected 2 mark calls, got %d", len(marker.calls))
	}
	if len(conn.received()) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(conn.received()))
	}
}
