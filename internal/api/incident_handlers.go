package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/incident"
)

// IncidentLister derives recent incidents from the heartbeat stream.
type IncidentLister interface {
	Recent(ctx context.Context, limit int) ([]incident.Incident, error)
}

type incidentsResponse struct {
	Incidents []incident.Incident `json:"incidents"`
	Total     int                 `json:"total"`
}

// HandleGetIncidents returns grouped incidents. An out-of-range limit is
// clamped; a structurally invalid one is a client error.
func HandleGetIncidents(det IncidentLister, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := incident.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		if limit < 1 {
			limit = 1
		}
		if limit > incident.MaxLimit {
			limit = incident.MaxLimit
		}

		key := cache.IncidentsKey(limit)
		if cached, ok := c.Get(key); ok {
			if resp, ok := cached.(*incidentsResponse); ok {
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}

		incidents, err := det.Recent(r.Context(), limit)
		if err != nil {
			log.Printf("Failed to derive incidents: %v", err)
			http.Error(w, "Failed to load incidents", http.StatusInternalServerError)
			return
		}
		if incidents == nil {
			incidents = []incident.Incident{}
		}

		resp := &incidentsResponse{Incidents: incidents, Total: len(incidents)}
		c.Set(key, resp)
		writeJSON(w, http.StatusOK, resp)
	}
}
