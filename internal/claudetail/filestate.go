package claudetail

// SessionEnded drops stale offset rows for sessionID, called when C6
// observes a Stop hook or a registry timeout for a Claude session
// (spec §4.5's "On session_end ... call delete_for_session").
func (r *Reader) SessionEnded(sessionID string) error {
	return r.offsets.DeleteForSession(sessionID)
}
