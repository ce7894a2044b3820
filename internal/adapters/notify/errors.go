package notify

import "errors"

var (
	ErrUnknownCodec   = errors.New("unknown notification codec")
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrPublishTimeout = errors.New("mqtt publish timeout")
	ErrConnectTimeout = errors.New("mqtt connection timeout")
)
