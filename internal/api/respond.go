package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/store"
)

// defaultListLimit caps unpaginated run listings.
const defaultListLimit = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func runFilterFromQuery(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:         model.RunStatus(q.Get("status")),
		JurisdictionID: q.Get("jurisdiction_id"),
		Disease:        q.Get("disease"),
		Limit:          defaultListLimit,
	}

	switch filter.Status {
	case "", model.RunStatusQueued, model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusFailed:
	default:
		return store.RunFilter{}, eris.Errorf("api: unknown status %q", filter.Status)
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return store.RunFilter{}, eris.Errorf("api: invalid limit %q", raw)
		}
		if limit > defaultListLimit {
			limit = defaultListLimit
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return store.RunFilter{}, eris.Errorf("api: invalid offset %q", raw)
		}
		filter.Offset = offset
	}

	return filter, nil
}
