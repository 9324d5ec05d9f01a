package tracker

import (
	"fmt"
	"log"
	"time"

	"github.com/JonasWeigert/VowPix/internal/pkg/cache"
)

// Cache key format for the generation status mirror
const (
	statusKeyFormat          = "generation:status:%s"           // Format: generation:status:<uuid>
	statusTimestampKeyFormat = "generation:status:timestamp:%s" // Format: generation:status:timestamp:<uuid>
)

// setStatusMirror mirrors the request status into Redis for cheap polling.
// The mirror is advisory only; the database row stays authoritative and the
// status endpoint falls back to it on a cache miss.
func setStatusMirror(requestUUID string, status string) {
	key := fmt.Sprintf(statusKeyFormat, requestUUID)
	tsKey := fmt.Sprintf(statusTimestampKeyFormat, requestUUID)
	if err := cache.Set(key, status, 24*time.Hour); err != nil {
		log.Printf("tracker: could not mirror status for %s: %v", requestUUID, err)
		return
	}
	_ = cache.Set(tsKey, time.Now().Format(time.RFC3339), 24*time.Hour)
}

// GetMirroredStatus returns the cached status for a request, if present.
func GetMirroredStatus(requestUUID string) (string, error) {
	return cache.Get(fmt.Sprintf(statusKeyFormat, requestUUID))
}

// GetMirroredStatusTimestamp returns when the mirrored status was written.
func GetMirroredStatusTimestamp(requestUUID string) (time.Time, error) {
	raw, err := cache.Get(fmt.Sprintf(statusTimestampKeyFormat, requestUUID))
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}
