package cursormonitor

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/ingress"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
	"github.com/blueplane-ai/bp-telemetry-core/internal/registry"

	_ "modernc.org/sqlite"
)

// memDedupStore is an in-memory DedupStore test double.
type memDedupStore struct {
	mu     sync.Mutex
	states map[string]DedupState
}

func newMemDedupStore() *memDedupStore {
	return &memDedupStore{states: make(map[string]DedupState)}
}

func (m *memDedupStore) key(workspaceHash, sourceKey string) string {
	return workspaceHash + "\x00" + sourceKey
}

func (m *memDedupStore) GetDedupState(workspaceHash, sourceKey string) (DedupState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[m.key(workspaceHash, sourceKey)], nil
}

func (m *memDedupStore) UpsertDedupState(state DedupState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[m.key(state.WorkspaceHash, state.SourceKey)] = state
	return nil
}

// openWritable creates a fresh workspace-shaped state.vscdb (ItemTable)
// at path, for a test to seed with rows.
func openWritable(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value BLOB)`); err != nil {
		t.Fatalf("create ItemTable: %v", err)
	}
	return db
}

func openWritableGlobal(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE cursorDiskKV (key TEXT PRIMARY KEY, value BLOB)`); err != nil {
		t.Fatalf("create cursorDiskKV: %v", err)
	}
	return db
}

func setItem(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO ItemTable(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		t.Fatalf("set item %s: %v", key, err)
	}
}

func setDiskKV(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO cursorDiskKV(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		t.Fatalf("set disk kv %s: %v", key, err)
	}
}

func testLogger() *events.EventLogger {
	return events.NewEventLogger("cursormonitor-test")
}

func countEnqueuedCursor(t *testing.T, broker *mqueue.FakeBroker) []mqueue.Message {
	t.Helper()
	if err := broker.EnsureGroup(context.Background(), mqueue.StreamMessageQueue, "inspect"); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	msgs, err := broker.ReadGroup(context.Background(), mqueue.StreamMessageQueue, "inspect", "c", 1000, 0)
	if err != nil {
		t.Fatalf("ReadGroup failed: %v", err)
	}
	return msgs
}

func TestPollGenerationsEmitsOnlyEntriesPastWatermark(t *testing.T) {
	dir := t.TempDir()
	db := openWritable(t, filepath.Join(dir, "ws.db"))
	defer db.Close()
	setItem(t, db, "aiService.generations", `[
		{"generationUUID":"g1","unixMs":1000,"type":"composer"},
		{"generationUUID":"g2","unixMs":2000,"type":"composer"}
	]`)

	broker := mqueue.NewFakeBroker()
	ing := ingress.New(broker, nil)
	relay := ingress.NewRelay(ing)
	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, relay: relay, logger: testLogger()}

	var got []map[string]interface{}
	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		got = append(got, scalars)
	}
	m.pollGenerations(db, "ws1", emit)
	if len(got) != 2 {
		t.Fatalf("expected 2 generation events, got %d", len(got))
	}

	// Second poll with the same data: watermark now excludes both.
	got = nil
	m.pollGenerations(db, "ws1", emit)
	if len(got) != 0 {
		t.Fatalf("expected 0 new generation events after watermark advanced, got %d", len(got))
	}

	// A new generation beyond the watermark is emitted.
	setItem(t, db, "aiService.generations", `[
		{"generationUUID":"g1","unixMs":1000,"type":"composer"},
		{"generationUUID":"g2","unixMs":2000,"type":"composer"},
		{"generationUUID":"g3","unixMs":3000,"type":"composer"}
	]`)
	m.pollGenerations(db, "ws1", emit)
	if len(got) != 1 || got[0]["generation_uuid"] != "g3" {
		t.Fatalf("expected exactly the new generation g3, got %+v", got)
	}
}

func TestPollComposerDataEmitsCreatedThenUpdatedThenArchived(t *testing.T) {
	dir := t.TempDir()
	db := openWritable(t, filepath.Join(dir, "ws.db"))
	defer db.Close()

	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, logger: testLogger()}

	var actions []string
	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		actions = append(actions, scalars["action"].(string))
	}

	setItem(t, db, "composer.composerData", `[{"composerId":"c1","linesAdded":5,"linesRemoved":0,"isArchived":false}]`)
	ids := m.pollComposerData(db, "ws1", emit)
	if len(ids) != 1 || ids[0] != "c1" {
		t.Fatalf("expected composerIDs [c1], got %v", ids)
	}
	if len(actions) != 1 || actions[0] != "composer_created" {
		t.Fatalf("expected composer_created, got %v", actions)
	}

	actions = nil
	setItem(t, db, "composer.composerData", `[{"composerId":"c1","linesAdded":9,"linesRemoved":1,"isArchived":false}]`)
	m.pollComposerData(db, "ws1", emit)
	if len(actions) != 1 || actions[0] != "composer_updated" {
		t.Fatalf("expected composer_updated, got %v", actions)
	}

	actions = nil
	setItem(t, db, "composer.composerData", `[{"composerId":"c1","linesAdded":9,"linesRemoved":1,"isArchived":true}]`)
	m.pollComposerData(db, "ws1", emit)
	if len(actions) != 1 || actions[0] != "composer_archived" {
		t.Fatalf("expected composer_archived, got %v", actions)
	}

	// Unchanged snapshot: no event.
	actions = nil
	m.pollComposerData(db, "ws1", emit)
	if len(actions) != 0 {
		t.Fatalf("expected no event for an unchanged composer snapshot, got %v", actions)
	}
}

func TestPollComposerBubblesEmitsOnlyNewBubbleIDs(t *testing.T) {
	dir := t.TempDir()
	globalDB := openWritableGlobal(t, filepath.Join(dir, "global.db"))
	defer globalDB.Close()

	setDiskKV(t, globalDB, "composerData:c1", `{"conversation":[
		{"bubbleId":"b1","type":1,"text":"hello"},
		{"bubbleId":"b2","type":2,"text":"hi"}
	]}`)

	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, logger: testLogger()}

	var ids []string
	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		ids = append(ids, scalars["bubble_id"].(string))
	}
	m.pollComposerBubbles(globalDB, "ws1", []string{"c1"}, emit)
	if len(ids) != 2 {
		t.Fatalf("expected 2 bubble events, got %d", len(ids))
	}

	ids = nil
	m.pollComposerBubbles(globalDB, "ws1", []string{"c1"}, emit)
	if len(ids) != 0 {
		t.Fatalf("expected no re-emitted bubbles on second poll, got %v", ids)
	}

	setDiskKV(t, globalDB, "composerData:c1", `{"conversation":[
		{"bubbleId":"b1","type":1,"text":"hello"},
		{"bubbleId":"b2","type":2,"text":"hi"},
		{"bubbleId":"b3","type":2,"text":"new"}
	]}`)
	ids = nil
	m.pollComposerBubbles(globalDB, "ws1", []string{"c1"}, emit)
	if len(ids) != 1 || ids[0] != "b3" {
		t.Fatalf("expected only new bubble b3, got %v", ids)
	}
}

func TestPollBackgroundComposerEmitsOnlyOnChange(t *testing.T) {
	dir := t.TempDir()
	db := openWritable(t, filepath.Join(dir, "ws.db"))
	defer db.Close()
	setItem(t, db, "workbench.backgroundComposer.workspacePersistentData", `{"state":"running"}`)

	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, logger: testLogger()}

	count := 0
	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		count++
	}
	m.pollBackgroundComposer(db, "ws1", emit)
	if count != 1 {
		t.Fatalf("expected 1 emit on first observation, got %d", count)
	}

	m.pollBackgroundComposer(db, "ws1", emit)
	if count != 1 {
		t.Fatalf("expected no re-emit when unchanged, got %d", count)
	}

	setItem(t, db, "workbench.backgroundComposer.workspacePersistentData", `{"state":"idle"}`)
	m.pollBackgroundComposer(db, "ws1", emit)
	if count != 2 {
		t.Fatalf("expected a second emit after the value changed, got %d", count)
	}
}

func TestPollHistoryEntriesEmitsOnlyNewEntries(t *testing.T) {
	dir := t.TempDir()
	db := openWritable(t, filepath.Join(dir, "ws.db"))
	defer db.Close()
	setItem(t, db, "history.entries", `[{"resource":"file:///a.go"},{"resource":"file:///b.go"}]`)

	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, logger: testLogger()}

	count := 0
	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		count++
	}
	m.pollHistoryEntries(db, "ws1", emit)
	if count != 2 {
		t.Fatalf("expected 2 file_opened events, got %d", count)
	}

	setItem(t, db, "history.entries", `[{"resource":"file:///a.go"},{"resource":"file:///b.go"},{"resource":"file:///c.go"}]`)
	m.pollHistoryEntries(db, "ws1", emit)
	if count != 3 {
		t.Fatalf("expected exactly one additional file_opened event, got %d total", count)
	}
}

func TestSourcesToleratesMissingKeysWithoutError(t *testing.T) {
	dir := t.TempDir()
	db := openWritable(t, filepath.Join(dir, "ws.db"))
	defer db.Close()

	dedup := newMemDedupStore()
	m := &Monitor{dedup: dedup, logger: testLogger()}
	noop := func(string, map[string]interface{}, int64, map[string]interface{}) {
		t.Fatal("emit should not be called when the key is absent")
	}

	m.pollGenerations(db, "ws1", noop)
	ids := m.pollComposerData(db, "ws1", noop)
	if ids != nil {
		t.Fatalf("expected no composerIDs when composer.composerData is absent, got %v", ids)
	}
	m.pollBackgroundComposer(db, "ws1", noop)
	m.pollHistoryEntries(db, "ws1", noop)
}

func TestPollWorkspaceIsolatesPerWorkspaceFailures(t *testing.T) {
	dir := t.TempDir()

	goodDB := openWritable(t, filepath.Join(dir, "good.db"))
	defer goodDB.Close()
	setItem(t, goodDB, "aiService.generations", `[{"generationUUID":"g1","unixMs":1000,"type":"composer"}]`)

	broker := mqueue.NewFakeBroker()
	ing := ingress.New(broker, nil)
	relay := ingress.NewRelay(ing)
	dedup := newMemDedupStore()

	reg := registry.New(registry.NewMemStore())
	if _, err := reg.SessionStart("ext-good", "good-hash", "/repo/good", 1, nil); err != nil {
		t.Fatalf("SessionStart failed: %v", err)
	}

	m := New(Config{PollInterval: time.Hour}, reg, dedup, relay, testLogger())
	m.userDir = t.TempDir() // exists, but workspaceStorage/<hash> does not for either workspace

	// pollWorkspace against a workspace whose file doesn't exist must
	// not panic and must not affect other workspaces.
	ws := registry.ActiveWorkspace{WorkspaceHash: "missing-hash", WorkspacePath: "/nope", SessionID: "s1"}
	m.pollWorkspace(context.Background(), ws, nil)
}
