package httpx

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/ws"
)

// RoomsAPI exposes read-only room status: a pull-style complement to the
// websocket presence pushes.
type RoomsAPI struct{ Hub *ws.Hub }

type roomStatus struct {
	AsteroidID string `json:"asteroid_id"`
	Count      int    `json:"count"`
}

// List returns every active room with its presence count (operator view).
func (a *RoomsAPI) List(w http.ResponseWriter, r *http.Request) {
	snap := a.Hub.Rooms().Snapshot()
	out := make([]roomStatus, 0, len(snap))
	for key, count := range snap {
		out = append(out, roomStatus{AsteroidID: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsteroidID < out[j].AsteroidID })
	writeJSON(w, out)
}

// Online returns the presence count for one room; 0 for unknown rooms,
// mirroring the get_online_users websocket query.
func (a *RoomsAPI) Online(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	writeJSON(w, roomStatus{AsteroidID: id, Count: a.Hub.Rooms().PresenceCount(id)})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
