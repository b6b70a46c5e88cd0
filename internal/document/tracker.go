// Package document tracks open documents and keeps a language server's view
// of them synchronized through textDocument/did* notifications.
package document

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dshills/lspwire/internal/protocol"
)

// changeDebounce batches rapid edit bursts into a single didChange.
const changeDebounce = 500 * time.Millisecond

// Sender delivers notifications to the language server. *rpc.Client
// satisfies it.
type Sender interface {
	SendNotification(n protocol.Notification)
}

// docState is the tracked state of one open document.
type docState struct {
	languageID string
	version    int
	text       string
	pending    []protocol.ContentChange
	timer      *time.Timer
}

// Snapshot is the durable description of an open document, sufficient to
// re-open it on a freshly started server.
type Snapshot struct {
	Path       string
	LanguageID string
	Text       string
}

// Tracker owns document open/change/save/close synchronization for one
// server connection. Versions start at zero on open and increment once per
// flushed didChange, so the server sees a strictly increasing sequence.
type Tracker struct {
	mu     sync.Mutex
	sender Sender
	docs   map[string]*docState
	log    *slog.Logger
}

// NewTracker creates a tracker that sends through the given sender.
func NewTracker(sender Sender, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		sender: sender,
		docs:   make(map[string]*docState),
		log:    log,
	}
}

// Open registers a document and sends didOpen. Opening an already tracked
// document is a no-op; close it first to reset its state.
func (t *Tracker) Open(path, languageID, text string) {
	t.mu.Lock()
	if _, ok := t.docs[path]; ok {
		t.mu.Unlock()
		t.log.Debug("document already open", "path", path)
		return
	}
	t.docs[path] = &docState{languageID: languageID, text: text}
	sender := t.sender
	t.mu.Unlock()

	sender.SendNotification(protocol.DidOpen(protocol.DidOpenParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.FilePathToURI(path),
			LanguageID: languageID,
			Version:    0,
			Text:       text,
		},
	}))
}

// QueueChange records edits to an open document. The edits are batched and
// sent as one didChange after a short quiet period; Flush sends them
// immediately. Changes to untracked documents are dropped.
func (t *Tracker) QueueChange(path string, changes ...protocol.ContentChange) {
	if len(changes) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.docs[path]
	if !ok {
		t.log.Debug("change for untracked document", "path", path)
		return
	}

	doc.pending = append(doc.pending, changes...)
	for _, ch := range changes {
		if ch.Range == nil {
			doc.text = ch.Text
		}
	}

	if doc.timer != nil {
		doc.timer.Stop()
	}
	doc.timer = time.AfterFunc(changeDebounce, func() { t.Flush(path) })
}

// Flush sends any batched changes for the document immediately.
func (t *Tracker) Flush(path string) {
	t.mu.Lock()
	doc, ok := t.docs[path]
	if !ok || len(doc.pending) == 0 {
		t.mu.Unlock()
		return
	}
	if doc.timer != nil {
		doc.timer.Stop()
		doc.timer = nil
	}
	changes := doc.pending
	doc.pending = nil
	doc.version++
	version := doc.version
	sender := t.sender
	t.mu.Unlock()

	sender.SendNotification(protocol.DidChange(protocol.DidChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			URI:     protocol.FilePathToURI(path),
			Version: version,
		},
		ContentChanges: changes,
	}))
}

// Saved flushes pending changes and sends didSave. When includeText is set
// the notification carries the full document text.
func (t *Tracker) Saved(path string, includeText bool) {
	t.Flush(path)

	t.mu.Lock()
	doc, ok := t.docs[path]
	if !ok {
		t.mu.Unlock()
		return
	}
	text := ""
	if includeText {
		text = doc.text
	}
	sender := t.sender
	t.mu.Unlock()

	sender.SendNotification(protocol.DidSave(protocol.DidSaveParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.FilePathToURI(path)},
		Text:         text,
	}))
}

// Close drops the document and sends didClose. Pending changes are discarded;
// the server is about to forget the document anyway.
func (t *Tracker) Close(path string) {
	t.mu.Lock()
	doc, ok := t.docs[path]
	if !ok {
		t.mu.Unlock()
		return
	}
	if doc.timer != nil {
		doc.timer.Stop()
	}
	delete(t.docs, path)
	sender := t.sender
	t.mu.Unlock()

	sender.SendNotification(protocol.DidClose(protocol.DidCloseParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.FilePathToURI(path)},
	}))
}

// Snapshots returns the open documents in a stable order, for re-opening
// them after a server restart.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snaps := make([]Snapshot, 0, len(t.docs))
	for path, doc := range t.docs {
		snaps = append(snaps, Snapshot{Path: path, LanguageID: doc.languageID, Text: doc.text})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Path < snaps[j].Path })
	return snaps
}

// Rebind switches the tracker to a new sender and replays didOpen for every
// tracked document with its version reset, bringing a restarted server up to
// the client's current view.
func (t *Tracker) Rebind(sender Sender) {
	t.mu.Lock()
	t.sender = sender
	type reopen struct {
		path string
		doc  *docState
	}
	reopens := make([]reopen, 0, len(t.docs))
	for path, doc := range t.docs {
		if doc.timer != nil {
			doc.timer.Stop()
			doc.timer = nil
		}
		doc.pending = nil
		doc.version = 0
		reopens = append(reopens, reopen{path: path, doc: doc})
	}
	t.mu.Unlock()

	for _, r := range reopens {
		sender.SendNotification(protocol.DidOpen(protocol.DidOpenParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        protocol.FilePathToURI(r.path),
				LanguageID: r.doc.languageID,
				Version:    0,
				Text:       r.doc.text,
			},
		}))
	}
}

// Len reports how many documents are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}
