package model

import "encoding/json"

// SourceBuffers holds the three independently owned text buffers. The
// compiled preview document is always regenerated from these, never edited
// directly.
type SourceBuffers struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// EncodeCode serializes the buffers into the stringified-JSON form the
// submission endpoint expects ({"html":...,"css":...,"js":...}).
func (b SourceBuffers) EncodeCode() string {
	raw, _ := json.Marshal(b)
	return string(raw)
}
