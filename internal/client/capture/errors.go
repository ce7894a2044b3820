package capture

import "errors"

var (
	// ErrDeviceUnavailable means the camera or microphone could not be
	// acquired. Recording must not start.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrDeviceLost means the device went away mid-recording. The partial
	// clip is discarded.
	ErrDeviceLost = errors.New("capture device lost")
	// ErrRecordingUnsupported means the encoder could not be started.
	ErrRecordingUnsupported = errors.New("recording unsupported")

	ErrNotReady     = errors.New("device not acquired")
	ErrBusy         = errors.New("capture already running")
	ErrNotRecording = errors.New("not recording")
	ErrClosed       = errors.New("controller closed")
)
