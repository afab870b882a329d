package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RunStageKey(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s", runID)
}

func RateLimitKey(addr string) string {
	return fmt.Sprintf("ratelimit:%s", addr)
}
