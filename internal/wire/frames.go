package wire

import (
	"encoding/json"
	"fmt"
)

// protocolVersion is part of the literal connect frame.
const protocolVersion = 31

// ConnectInfo is the fixed handshake descriptor sent in the connect frame.
type ConnectInfo struct {
	Locale          string `json:"locale"`
	PlatformID      string `json:"platformId"`
	PlatformVersion string `json:"platformVersion"`
	ClientID        string `json:"clientId"`
	ClientVersion   string `json:"clientVersion"`
}

// DefaultConnectInfo returns the descriptor the broker's web client sends.
func DefaultConnectInfo() ConnectInfo {
	return ConnectInfo{
		Locale:          "en",
		PlatformID:      "webtrading",
		PlatformVersion: "chrome - 120.0.0",
		ClientID:        "app.traderepublic.com",
		ClientVersion:   "1.0.0",
	}
}

// ConnectFrame renders "connect 31 <json>".
func ConnectFrame(info ConnectInfo) (string, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode connect descriptor: %w", err)
	}
	return fmt.Sprintf("connect %d %s", protocolVersion, data), nil
}

// SubFrame renders "sub <id> <json>" where the JSON merges the topic type
// with the payload fields.
func SubFrame(id int, topic string, payload map[string]any) (string, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = topic

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode subscribe payload: %w", err)
	}
	return fmt.Sprintf("sub %d %s", id, data), nil
}

// UnsubFrame renders "unsub <id>".
func UnsubFrame(id int) string {
	return fmt.Sprintf("unsub %d", id)
}
