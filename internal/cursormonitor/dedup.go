package cursormonitor

import "github.com/blueplane-ai/bp-telemetry-core/internal/store"

// DedupState is re-exported from store so this package's callers
// never need to import internal/store directly.
type DedupState = store.DedupState

// DedupStore is the persisted-watermark surface C4 needs from C9/C8
// (spec §4.4's "dedup sets persisted via C9").
type DedupStore interface {
	GetDedupState(workspaceHash, sourceKey string) (DedupState, error)
	UpsertDedupState(state DedupState) error
}

// Source keys identify each of the 5 logical sources within one
// workspace's dedup namespace (spec §4.4).
const (
	SourceGenerations     = "aiService.generations"
	SourceComposerData    = "composer.composerData"
	SourceBackgroundState = "workbench.backgroundComposer.workspacePersistentData"
	SourceHistoryEntries  = "history.entries"
)

// bubbleSourceKey namespaces the per-composer bubble dedup watermark
// under its own source key, since bubbles are tracked per composerId
// rather than per workspace.
func bubbleSourceKey(composerID string) string {
	return "cursorDiskKV.composerData:" + composerID
}
