package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AnalysisStatusKey(flowID uuid.UUID) string {
	return fmt.Sprintf("analysis:%s", flowID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
