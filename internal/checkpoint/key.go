package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"speech-checkpoint-service/internal/models"
)

// JobKey derives the stable identity of a job from the source identity, the
// engine configuration and the time window. Two invocations with the same
// inputs share a checkpoint; a different window or model gets a new one.
func JobKey(sourceID, model, device string, window *models.Window) string {
	start, end := fmt.Sprintf("%.3f", window.StartOrZero()), "end"
	if window != nil && window.End != nil {
		end = fmt.Sprintf("%.3f", *window.End)
	}
	sum := sha256.Sum256([]byte(sourceID + "|" + model + "|" + device + "|" + start + "|" + end))
	return hex.EncodeToString(sum[:])[:16]
}
