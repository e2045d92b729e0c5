package enrich

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// NewOperationID mints a pending-approval token: op_{base36(ms_since_epoch)}_{24hex of CSPRNG} (§6).
func NewOperationID(now time.Time) (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("enrich: generate operation id: %w", err)
	}
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	return fmt.Sprintf("op_%s_%s", ts, hex.EncodeToString(buf)), nil
}
