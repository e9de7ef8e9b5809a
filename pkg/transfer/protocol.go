package transfer

import "errors"

// MessageType tags the text control records exchanged on the data channel.
type MessageType string

const (
	FileMetadataType     MessageType = "file-metadata"
	TransferCompleteType MessageType = "transfer-complete"
)

var (
	ErrChannelUnavailable = errors.New("data channel is not open")
	ErrReadFailure        = errors.New("failed to read from source")
	ErrIncompleteTransfer = errors.New("transfer completed before all bytes arrived")
	ErrProtocolViolation  = errors.New("unexpected message on data channel")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// FileMetadata describes the file being transferred. It is sent as the first
// message on the channel.
type FileMetadata struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"fileType"`
	// Checksum is an optional hex SHA-256 of the whole file.
	Checksum string `json:"checksum,omitempty"`
}

// ControlMessage is the union of every text record on the data channel.
type ControlMessage struct {
	Type MessageType `json:"type"`
	FileMetadata
}

// Progress is the integer percentage of size covered by offset.
func Progress(offset, size int64) int {
	if size <= 0 {
		return 100
	}
	return int((offset*100 + size/2) / size)
}
