package transfer

import "time"

// Wire and flow-control constants.
const (
	ChunkSize     = 16 * 1024   // payload bytes per data frame
	HighWaterMark = 1024 * 1024 // never queue more than this on the channel
	LowWaterMark  = 512 * 1024  // buffered-amount-low threshold

	SendTimeout  = 60 * time.Second // max wait for the buffer to drain below HighWaterMark
	DrainTimeout = 30 * time.Second // max wait for the buffer to empty after the last file
)

// Control message types.
const (
	MessageTypeFileInfo         = "file-info"
	MessageTypeTransferComplete = "transfer-complete"
)

// TransferOptions controls where received files land.
type TransferOptions struct {
	OutputDir string
}
