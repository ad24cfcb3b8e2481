package utils

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Feed cursors are opaque to clients: base64("created_ts|post_id"). The
// encoded pair is the sort key of the last item served, so pagination is
// stable under concurrent inserts.

// EncodeCursor returns the opaque cursor for a feed position.
func EncodeCursor(createdTS int64, postID string) string {
	raw := fmt.Sprintf("%d|%s", createdTS, postID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor back into its sort key parts.
func DecodeCursor(cur string) (int64, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cur)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor")
	}
	parts := strings.SplitN(string(b), "|", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("malformed cursor")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor")
	}
	return ts, parts[1], nil
}
