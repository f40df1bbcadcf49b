package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/syncer"
)

// SyncRunner runs one sync pass.
type SyncRunner interface {
	Run(ctx context.Context) (*syncer.Summary, error)
}

// syncResponse wraps the run summary for the trigger endpoint.
type syncResponse struct {
	Success    bool  `json:"success"`
	DurationMs int64 `json:"durationMs"`
	*syncer.Summary
}

// HandleTriggerSync runs a sync pass on behalf of an external scheduler.
// The bearer token is compared against the shared secret before any work
// happens; a mismatch performs no side effects and leaks nothing.
func HandleTriggerSync(job SyncRunner, c *cache.Cache, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, secret) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		summary, err := job.Run(r.Context())
		if errors.Is(err, syncer.ErrSourceUnavailable) {
			http.Error(w, "Monitoring source is unavailable", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			log.Printf("Sync run failed: %v", err)
			http.Error(w, "Sync failed", http.StatusInternalServerError)
			return
		}

		c.InvalidateAll()

		writeJSON(w, http.StatusOK, syncResponse{
			Success:    true,
			DurationMs: summary.Duration.Milliseconds(),
			Summary:    summary,
		})
	}
}

// authorized checks the Authorization: Bearer header against the shared
// secret in constant time. An empty configured secret never authorizes.
func authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
