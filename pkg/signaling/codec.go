package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown signaling message type")
	ErrMalformed   = errors.New("malformed signaling message")
)

// Encode marshals msg with its "type" tag.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	tag, _ := json.Marshal(msg.Type())
	fields["type"] = tag
	return json.Marshal(fields)
}

// Decode parses one envelope. It returns ErrUnknownType for a well-formed
// envelope with a type this package does not know, which callers log and
// drop.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeWelcome:
		return decodeAs[Welcome](data)
	case TypeFileOffer:
		return decodeAs[FileOffer](data)
	case TypeFileRequest:
		return decodeAs[FileRequest](data)
	case TypeFileOfferAck:
		return decodeAs[FileOfferAck](data)
	case TypePeerNotFound:
		return decodeAs[PeerNotFound](data)
	case TypeInitiateWebRTC:
		return decodeAs[InitiateWebRTC](data)
	case TypeOffer:
		return decodeAs[Offer](data)
	case TypeAnswer:
		return decodeAs[Answer](data)
	case TypeICECandidate:
		return decodeAs[ICECandidate](data)
	case TypePeerDisconnected:
		return decodeAs[PeerDisconnected](data)
	case TypeError:
		return decodeAs[Error](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}
