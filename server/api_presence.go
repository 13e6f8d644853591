package main

import "net/http"

// POST /api/presence/heartbeat {forced}
// Browser triggers (visibility regained, focus, pointer/key activity, the
// periodic client timer) all land here and share the tracker throttle. The
// forced flag is the unload beacon: it records the departure and tears the
// session down, so the next touch re-enters heartbeating from scratch. Write
// failures are still invisible to the client.
func (a *api) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	u, err := a.currentUser(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	var req struct {
		Forced bool `json:"forced"`
	}
	// an empty body counts as a plain throttled touch
	_ = readJSON(w, r, &req)

	if req.Forced {
		a.tracker.Beacon(r.Context(), u.ID)
	} else if !a.tracker.Active(u.ID) {
		// session state was lost (restart); re-enter heartbeating
		a.tracker.StartSession(r.Context(), u.ID)
	} else {
		a.tracker.Touch(r.Context(), u.ID)
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}
