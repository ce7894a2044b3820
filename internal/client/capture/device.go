package capture

import (
	"context"
	"io"
)

// Device is a camera and microphone pair that encodes to a byte stream.
type Device interface {
	// Acquire claims the hardware. It fails with ErrDeviceUnavailable.
	Acquire(ctx context.Context) error
	// Start begins encoding into w. It fails with ErrRecordingUnsupported.
	Start(ctx context.Context, w io.Writer) (Recorder, error)
	// ContentType is the MIME type of the encoded stream.
	ContentType() string
	// Release frees the hardware. Safe to call in any state.
	Release() error
}

// Recorder is one running encode.
type Recorder interface {
	// Stop finalizes the stream and returns once every byte is written.
	Stop() error
	// Lost delivers an error if the encode ends without Stop.
	Lost() <-chan error
}
