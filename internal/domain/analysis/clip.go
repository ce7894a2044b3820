package analysis

import "encoding/base64"

// Clip is the video handed to the collaborator.
type Clip struct {
	Data []byte
	MIME string
}

// DataURL encodes the clip inline.
func (c Clip) DataURL() string {
	mime := c.MIME
	if mime == "" {
		mime = "video/webm"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// Request is one performance analysis call.
type Request struct {
	TestSlug string
	Prompt   string
	Clip     Clip
}
