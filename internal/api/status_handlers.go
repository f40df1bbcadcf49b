package api

import (
	"context"
	"log"
	"net/http"

	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/stats"
)

// StatsProvider computes the status page payload.
type StatsProvider interface {
	StatusPage(ctx context.Context) (*stats.StatusPage, error)
}

// HandleGetStatus returns per-monitor uptime statistics plus the overall
// block, read-through cached so dashboard polling does not hammer storage.
func HandleGetStatus(agg StatsProvider, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cached, ok := c.Get(cache.KeyStatusPage); ok {
			if page, ok := cached.(*stats.StatusPage); ok {
				writeJSON(w, http.StatusOK, page)
				return
			}
		}

		page, err := agg.StatusPage(r.Context())
		if err != nil {
			log.Printf("Failed to compute status page: %v", err)
			http.Error(w, "Failed to compute statistics", http.StatusInternalServerError)
			return
		}

		c.Set(cache.KeyStatusPage, page)
		writeJSON(w, http.StatusOK, page)
	}
}
