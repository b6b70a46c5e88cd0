package document

import (
	"sync"
	"testing"
	"time"

	"github.com/dshills/lspwire/internal/protocol"
)

// recordingSender captures notifications for inspection.
type recordingSender struct {
	mu    sync.Mutex
	sent  []protocol.Notification
	wakes chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{wakes: make(chan struct{}, 16)}
}

func (r *recordingSender) SendNotification(n protocol.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	select {
	case r.wakes <- struct{}{}:
	default:
	}
}

func (r *recordingSender) notifications() []protocol.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingSender) waitFor(t *testing.T, n int) []protocol.Notification {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if sent := r.notifications(); len(sent) >= n {
			return sent
		}
		select {
		case <-r.wakes:
		case <-deadline:
			t.Fatalf("timed out waiting for %d notifications, have %d", n, len(r.notifications()))
		}
	}
}

func TestOpenSendsDidOpen(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "package main\n")

	sent := sender.notifications()
	if len(sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sent))
	}
	if sent[0].Method != protocol.MethodDidOpen {
		t.Errorf("method = %q", sent[0].Method)
	}
	params, ok := sent[0].Params.(protocol.DidOpenParams)
	if !ok {
		t.Fatalf("params type %T", sent[0].Params)
	}
	if params.TextDocument.Version != 0 {
		t.Errorf("version = %d, want 0", params.TextDocument.Version)
	}
	if params.TextDocument.LanguageID != "go" {
		t.Errorf("languageId = %q", params.TextDocument.LanguageID)
	}
}

func TestOpenTwiceIsNoOp(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "v1")
	tr.Open("/src/main.go", "go", "v2")

	if sent := sender.notifications(); len(sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(sent))
	}
}

func TestQueueChangeBatchesIntoOneDidChange(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "a")
	tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "ab"})
	tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "abc"})

	sent := sender.waitFor(t, 2)
	if sent[1].Method != protocol.MethodDidChange {
		t.Fatalf("method = %q", sent[1].Method)
	}
	params, ok := sent[1].Params.(protocol.DidChangeParams)
	if !ok {
		t.Fatalf("params type %T", sent[1].Params)
	}
	if len(params.ContentChanges) != 2 {
		t.Errorf("batched %d changes, want 2", len(params.ContentChanges))
	}
	if params.TextDocument.Version != 1 {
		t.Errorf("version = %d, want 1", params.TextDocument.Version)
	}
}

func TestFlushSendsImmediately(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "a")
	tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "b"})
	tr.Flush("/src/main.go")

	sent := sender.notifications()
	if len(sent) != 2 || sent[1].Method != protocol.MethodDidChange {
		t.Fatalf("notifications = %d, want didOpen then didChange", len(sent))
	}

	// Nothing pending; another flush sends nothing.
	tr.Flush("/src/main.go")
	if len(sender.notifications()) != 2 {
		t.Error("empty flush sent a notification")
	}
}

func TestVersionsIncrementPerFlush(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "a")
	for i := 0; i < 3; i++ {
		tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "x"})
		tr.Flush("/src/main.go")
	}

	sent := sender.notifications()
	if len(sent) != 4 {
		t.Fatalf("sent %d notifications, want 4", len(sent))
	}
	for i, want := range []int{1, 2, 3} {
		params := sent[i+1].Params.(protocol.DidChangeParams)
		if params.TextDocument.Version != want {
			t.Errorf("flush %d version = %d, want %d", i, params.TextDocument.Version, want)
		}
	}
}

func TestSavedFlushesThenSendsDidSave(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "old")
	tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "new"})
	tr.Saved("/src/main.go", true)

	sent := sender.notifications()
	if len(sent) != 3 {
		t.Fatalf("sent %d notifications, want 3", len(sent))
	}
	if sent[1].Method != protocol.MethodDidChange || sent[2].Method != protocol.MethodDidSave {
		t.Errorf("methods = %q, %q", sent[1].Method, sent[2].Method)
	}
	params := sent[2].Params.(protocol.DidSaveParams)
	if params.Text != "new" {
		t.Errorf("saved text = %q, want full-sync content", params.Text)
	}
}

func TestCloseDiscardsPendingChanges(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/main.go", "go", "a")
	tr.QueueChange("/src/main.go", protocol.ContentChange{Text: "b"})
	tr.Close("/src/main.go")

	sent := sender.notifications()
	if len(sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(sent))
	}
	if sent[1].Method != protocol.MethodDidClose {
		t.Errorf("method = %q", sent[1].Method)
	}
	if tr.Len() != 0 {
		t.Errorf("Len() = %d after close", tr.Len())
	}

	// No debounced didChange arrives later for the closed document.
	time.Sleep(changeDebounce + 100*time.Millisecond)
	if len(sender.notifications()) != 2 {
		t.Error("pending change flushed after close")
	}
}

func TestChangeUntrackedDocumentDropped(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.QueueChange("/never/opened.go", protocol.ContentChange{Text: "x"})
	tr.Flush("/never/opened.go")

	if len(sender.notifications()) != 0 {
		t.Error("change for untracked document was sent")
	}
}

func TestRebindReplaysOpenDocuments(t *testing.T) {
	first := newRecordingSender()
	tr := NewTracker(first, nil)

	tr.Open("/src/a.go", "go", "a body")
	tr.QueueChange("/src/a.go", protocol.ContentChange{Text: "a body v2"})
	tr.Flush("/src/a.go")
	tr.Open("/src/b.go", "go", "b body")

	second := newRecordingSender()
	tr.Rebind(second)

	sent := second.notifications()
	if len(sent) != 2 {
		t.Fatalf("rebind sent %d notifications, want 2", len(sent))
	}
	for _, n := range sent {
		if n.Method != protocol.MethodDidOpen {
			t.Errorf("method = %q, want didOpen", n.Method)
		}
		params := n.Params.(protocol.DidOpenParams)
		if params.TextDocument.Version != 0 {
			t.Errorf("rebind version = %d, want 0", params.TextDocument.Version)
		}
		if params.TextDocument.URI == protocol.FilePathToURI("/src/a.go") && params.TextDocument.Text != "a body v2" {
			t.Errorf("rebind text = %q, want latest full-sync content", params.TextDocument.Text)
		}
	}

	// Subsequent traffic goes to the new sender.
	tr.QueueChange("/src/a.go", protocol.ContentChange{Text: "a body v3"})
	tr.Flush("/src/a.go")
	if got := second.notifications(); len(got) != 3 {
		t.Errorf("new sender got %d notifications, want 3", len(got))
	}
	if got := first.notifications(); len(got) != 4 {
		t.Errorf("old sender got %d notifications, want the pre-rebind 4", len(got))
	}
}

func TestSnapshotsSortedByPath(t *testing.T) {
	sender := newRecordingSender()
	tr := NewTracker(sender, nil)

	tr.Open("/src/z.go", "go", "z")
	tr.Open("/src/a.go", "go", "a")

	snaps := tr.Snapshots()
	if len(snaps) != 2 || snaps[0].Path != "/src/a.go" || snaps[1].Path != "/src/z.go" {
		t.Errorf("Snapshots() = %+v", snaps)
	}
}
