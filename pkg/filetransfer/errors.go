package filetransfer

import "errors"

var (
	// ErrFileTooLarge is returned when a local file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("filetransfer: file exceeds maximum size")

	// ErrPathEscape is returned when a file path resolves outside its
	// required base directory (media_dir for outbound, receive_dir for
	// inbound).
	ErrPathEscape = errors.New("filetransfer: path escapes allowed directory")

	// ErrInvalidFileStart is returned when a file_start frame fails
	// bounds validation.
	ErrInvalidFileStart = errors.New("filetransfer: invalid file_start")

	// ErrTooManyConcurrentTransfers is returned when accepting a new
	// inbound transfer would exceed MaxConcurrentTransfers.
	ErrTooManyConcurrentTransfers = errors.New("filetransfer: too many concurrent inbound transfers")

	// ErrTransferNotFound is returned when a chunk or completion frame
	// references an unknown file_id.
	ErrTransferNotFound = errors.New("filetransfer: unknown transfer")

	// ErrOverSizeBudget is returned when accumulated bytes_received
	// exceeds total_size by more than the tolerance.
	ErrOverSizeBudget = errors.New("filetransfer: received more data than declared")

	// ErrIncompleteTransfer is returned when file_complete arrives before
	// every chunk index has been received.
	ErrIncompleteTransfer = errors.New("filetransfer: incomplete transfer")

	// ErrChecksumMismatch is returned when the declared sha256 does not
	// match the reassembled content.
	ErrChecksumMismatch = errors.New("filetransfer: checksum mismatch")
)
