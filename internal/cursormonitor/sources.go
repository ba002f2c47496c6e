package cursormonitor

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
)

// emitFunc hands one classified record to the ingress relay, bound to
// the workspace/session this poll cycle is operating on.
type emitFunc func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{})

// itemTableValue reads ItemTable[key] from db, returning (nil, nil)
// when the key is absent (spec §4.4's "missing keys/fields are
// treated as []/absent; never fatal").
func itemTableValue(db *sql.DB, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRow("SELECT value FROM ItemTable WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// cursorDiskKVValue reads cursorDiskKV[key] from the global store db.
func cursorDiskKVValue(db *sql.DB, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRow("SELECT value FROM cursorDiskKV WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON re-marshals v; map keys are sorted by encoding/json,
// so two semantically-equal objects hash identically regardless of
// source field order (spec §4.4's SHA-256-of-canonical-JSON policy).
func canonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func splitSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out[part] = struct{}{}
		}
	}
	return out
}

func joinSet(m map[string]struct{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// pollGenerations implements source 1 (spec §4.4): emit one event per
// aiService.generations element whose unixMs exceeds the persisted
// watermark, advancing the watermark to the observed max.
func (m *Monitor) pollGenerations(db *sql.DB, workspaceHash string, emit emitFunc) {
	raw, err := itemTableValue(db, "aiService.generations")
	if err != nil {
		m.logger.LogPollError("cursormonitor.generations", 1, err)
		return
	}
	if raw == nil {
		return
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		m.logger.LogSchemaDrift(workspaceHash, "aiService.generations")
		return
	}

	state, err := m.dedup.GetDedupState(workspaceHash, SourceGenerations)
	if err != nil {
		m.logger.LogPollError("cursormonitor.generations.dedup", 1, err)
		return
	}
	watermark := state.LastSeenUnixMs
	maxSeen := watermark

	for _, raw := range entries {
		proj := eventmodel.ExtractCursorGeneration(raw)
		if proj.UnixMs <= watermark {
			continue
		}
		scalars := map[string]interface{}{"generation_type": derefOr(proj.GenerationType, "")}
		if proj.GenerationUUID != nil {
			scalars["generation_uuid"] = *proj.GenerationUUID
		}
		emit(string(eventmodel.EventTypeGeneration), raw, proj.UnixMs, scalars)
		if proj.UnixMs > maxSeen {
			maxSeen = proj.UnixMs
		}
	}

	if maxSeen > watermark {
		_ = m.dedup.UpsertDedupState(DedupState{
			WorkspaceHash:  workspaceHash,
			SourceKey:      SourceGenerations,
			LastSeenUnixMs: maxSeen,
		})
	}
}

// pollComposerData implements source 2 (spec §4.4): diff
// composer.composerData entries by composerId, keeping one
// cursor_dedup_state row per composerId whose last_hash is the
// SHA-256 of that composer's canonical JSON. Returns every composerId
// currently listed, so the caller can feed source 3.
func (m *Monitor) pollComposerData(db *sql.DB, workspaceHash string, emit emitFunc) []string {
	raw, err := itemTableValue(db, "composer.composerData")
	if err != nil {
		m.logger.LogPollError("cursormonitor.composer_data", 1, err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		m.logger.LogSchemaDrift(workspaceHash, "composer.composerData")
		return nil
	}

	var composerIDs []string
	for _, obj := range entries {
		composerID := eventmodel.StringField(obj, "composerId")
		if composerID == nil {
			m.logger.LogSchemaDrift(workspaceHash, "composer.composerData[].composerId")
			continue
		}
		composerIDs = append(composerIDs, *composerID)

		canonical, err := canonicalJSON(obj)
		if err != nil {
			continue
		}
		hash := sha256Hex(canonical)
		key := "composer.composerData:" + *composerID

		prev, err := m.dedup.GetDedupState(workspaceHash, key)
		if err != nil {
			m.logger.LogPollError("cursormonitor.composer_data.dedup", 1, err)
			continue
		}

		var eventType eventmodel.EventType
		switch {
		case prev.LastHash == "":
			eventType = eventmodel.EventTypeComposer // composer_created, carried via scalars below
		case prev.LastHash != hash:
			eventType = eventmodel.EventTypeComposer // composer_updated/composer_archived
		default:
			continue
		}

		action := "composer_updated"
		if prev.LastHash == "" {
			action = "composer_created"
		} else if eventmodel.BoolField(obj, "isArchived") {
			action = "composer_archived"
		}

		scalars := map[string]interface{}{
			"composer_id": *composerID,
			"action":      action,
		}
		if v := eventmodel.IntField(obj, "linesAdded"); v != nil {
			scalars["lines_added"] = float64(*v)
		}
		if v := eventmodel.IntField(obj, "linesRemoved"); v != nil {
			scalars["lines_removed"] = float64(*v)
		}
		emit(string(eventType), obj, 0, scalars)

		if err := m.dedup.UpsertDedupState(DedupState{WorkspaceHash: workspaceHash, SourceKey: key, LastHash: hash}); err != nil {
			m.logger.LogPollError("cursormonitor.composer_data.dedup_write", 1, err)
		}
	}

	return composerIDs
}

// pollComposerBubbles implements source 3 (spec §4.4): for each
// composerId from source 2, read cursorDiskKV['composerData:<id>']
// from the global store and emit one bubble event per bubbleId not
// previously seen. The dedup row's last_hash field holds the known
// bubbleId set (comma-joined, sorted) rather than a content hash,
// since a true set difference — not mere change detection — is needed
// here.
func (m *Monitor) pollComposerBubbles(globalDB *sql.DB, workspaceHash string, composerIDs []string, emit emitFunc) {
	if globalDB == nil {
		return
	}

	for _, composerID := range composerIDs {
		raw, err := cursorDiskKVValue(globalDB, "composerData:"+composerID)
		if err != nil {
			m.logger.LogPollError("cursormonitor.bubbles", 1, err)
			continue
		}
		if raw == nil {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			m.logger.LogSchemaDrift(workspaceHash, "cursorDiskKV.composerData:"+composerID)
			continue
		}

		conversation, _ := obj["conversation"].([]interface{})
		key := bubbleSourceKey(composerID)
		prev, err := m.dedup.GetDedupState(workspaceHash, key)
		if err != nil {
			m.logger.LogPollError("cursormonitor.bubbles.dedup", 1, err)
			continue
		}
		seen := splitSet(prev.LastHash)

		for _, raw := range conversation {
			bubble, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			proj := eventmodel.ExtractCursorBubble(bubble)
			if proj.BubbleID == nil {
				continue
			}
			if _, already := seen[*proj.BubbleID]; already {
				continue
			}
			seen[*proj.BubbleID] = struct{}{}

			scalars := map[string]interface{}{
				"composer_id": composerID,
				"bubble_id":   *proj.BubbleID,
			}
			if proj.TokenCountUpToHere != nil {
				scalars["token_count_up_until_here"] = float64(*proj.TokenCountUpToHere)
			}
			if proj.RelevantFiles != nil {
				scalars["relevant_files"] = proj.RelevantFiles
			}
			if proj.CapabilitiesRan != nil {
				scalars["capabilities_ran"] = proj.CapabilitiesRan
			}
			if proj.CapabilityStatuses != nil {
				scalars["capability_statuses"] = proj.CapabilityStatuses
			}
			emit(string(eventmodel.EventTypeBubble), bubble, 0, scalars)
		}

		if err := m.dedup.UpsertDedupState(DedupState{WorkspaceHash: workspaceHash, SourceKey: key, LastHash: joinSet(seen)}); err != nil {
			m.logger.LogPollError("cursormonitor.bubbles.dedup_write", 1, err)
		}
	}
}

// pollBackgroundComposer implements source 4 (spec §4.4): emit an
// update event whenever the whole-blob SHA-256 changes.
func (m *Monitor) pollBackgroundComposer(db *sql.DB, workspaceHash string, emit emitFunc) {
	raw, err := itemTableValue(db, "workbench.backgroundComposer.workspacePersistentData")
	if err != nil {
		m.logger.LogPollError("cursormonitor.background_composer", 1, err)
		return
	}
	if raw == nil {
		return
	}

	hash := sha256Hex(raw)
	prev, err := m.dedup.GetDedupState(workspaceHash, SourceBackgroundState)
	if err != nil {
		m.logger.LogPollError("cursormonitor.background_composer.dedup", 1, err)
		return
	}
	if prev.LastHash == hash {
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.logger.LogSchemaDrift(workspaceHash, "workbench.backgroundComposer.workspacePersistentData")
		return
	}
	emit(string(eventmodel.EventTypeBackgroundState), payload, 0, nil)

	if err := m.dedup.UpsertDedupState(DedupState{WorkspaceHash: workspaceHash, SourceKey: SourceBackgroundState, LastHash: hash}); err != nil {
		m.logger.LogPollError("cursormonitor.background_composer.dedup_write", 1, err)
	}
}

// pollHistoryEntries implements source 5 (spec §4.4): emit
// file_opened for any history.entries element not previously seen,
// identified by the SHA-256 of its own canonical JSON (recent file
// accesses don't carry a stable id of their own).
func (m *Monitor) pollHistoryEntries(db *sql.DB, workspaceHash string, emit emitFunc) {
	raw, err := itemTableValue(db, "history.entries")
	if err != nil {
		m.logger.LogPollError("cursormonitor.history_entries", 1, err)
		return
	}
	if raw == nil {
		return
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		m.logger.LogSchemaDrift(workspaceHash, "history.entries")
		return
	}

	prev, err := m.dedup.GetDedupState(workspaceHash, SourceHistoryEntries)
	if err != nil {
		m.logger.LogPollError("cursormonitor.history_entries.dedup", 1, err)
		return
	}
	seen := splitSet(prev.LastHash)

	for _, entry := range entries {
		canonical, err := canonicalJSON(entry)
		if err != nil {
			continue
		}
		id := sha256Hex(canonical)
		if _, already := seen[id]; already {
			continue
		}
		seen[id] = struct{}{}
		emit(string(eventmodel.EventTypeFileOpened), entry, 0, nil)
	}

	if err := m.dedup.UpsertDedupState(DedupState{WorkspaceHash: workspaceHash, SourceKey: SourceHistoryEntries, LastHash: joinSet(seen)}); err != nil {
		m.logger.LogPollError("cursormonitor.history_entries.dedup_write", 1, err)
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
