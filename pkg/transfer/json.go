package transfer

import (
	"encoding/json"
	"fmt"
)

func EncodeMetadata(meta FileMetadata) (string, error) {
	data, err := json.Marshal(ControlMessage{Type: FileMetadataType, FileMetadata: meta})
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

func EncodeComplete() string {
	return `{"type":"transfer-complete"}`
}

// DecodeControl parses a text record. Unknown types are returned as-is and
// left for the caller to reject.
func DecodeControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: malformed control message: %v", ErrProtocolViolation, err)
	}
	if msg.Type == "" {
		return ControlMessage{}, fmt.Errorf("%w: control message without type", ErrProtocolViolation)
	}
	return msg, nil
}
