package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// roomKind maps a conversation key to the metric label for its kind.
func roomKind(key string) string {
	if strings.HasPrefix(key, "dm:") {
		return "dm"
	}
	return "channel"
}

func wsRoutingKey(kind string) string {
	if kind == "dm" {
		return "ws_events.dms"
	}
	return "ws_events.channels"
}
