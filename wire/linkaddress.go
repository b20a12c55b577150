package wire

import (
	"encoding/json"
	"regexp"

	"github.com/twosix-race/racecomms/rcerr"
)

// DirectAddress is the address document a DirectLink publishes so a peer can
// dial it back.
type DirectAddress struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// WhiteboardAddress is the address document a WhiteboardLink publishes.
// Timestamp, when non-zero, seeds the peer's resumable cursor.
type WhiteboardAddress struct {
	Hostname        string  `json:"hostname"`
	Port            int     `json:"port"`
	Hashtag         string  `json:"hashtag"`
	CheckFrequency  int     `json:"checkFrequency"`
	Timestamp       float64 `json:"timestamp"`
	MaxTries        int     `json:"maxTries"`
}

// BootstrapFileAddress is the (optional) address document a bootstrap-file
// link publishes.
type BootstrapFileAddress struct {
	Directory string `json:"directory,omitempty"`
}

var hashtagDisallowed = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeHashtag strips every character outside [A-Za-z0-9_-] from tag. It
// logs nothing, and none of its callers log when the result differs from
// the input.
func SanitizeHashtag(tag string) string {
	return hashtagDisallowed.ReplaceAllString(tag, "")
}

// ParseDirectAddress decodes a direct link address document.
func ParseDirectAddress(raw string) (DirectAddress, error) {
	var a DirectAddress
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return DirectAddress{}, rcerr.ErrInvalidAddress
	}
	if a.Hostname == "" || a.Port <= 0 {
		return DirectAddress{}, rcerr.ErrInvalidAddress
	}
	return a, nil
}

// Emit renders a DirectAddress deterministically.
func (a DirectAddress) Emit() string {
	b, _ := json.Marshal(a)
	return string(b)
}

// ParseWhiteboardAddress decodes a whiteboard link address document. The
// hashtag is sanitized in place; no warning is logged if it changed.
func ParseWhiteboardAddress(raw string) (WhiteboardAddress, error) {
	var a WhiteboardAddress
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return WhiteboardAddress{}, rcerr.ErrInvalidAddress
	}
	if a.Hostname == "" || a.Port <= 0 || a.Hashtag == "" {
		return WhiteboardAddress{}, rcerr.ErrInvalidAddress
	}
	a.Hashtag = SanitizeHashtag(a.Hashtag)
	if a.Hashtag == "" {
		return WhiteboardAddress{}, rcerr.ErrInvalidAddress
	}
	return a, nil
}

// Emit renders a WhiteboardAddress deterministically.
func (a WhiteboardAddress) Emit() string {
	b, _ := json.Marshal(a)
	return string(b)
}

// ParseBootstrapFileAddress decodes a bootstrap-file link address document.
// The directory field is optional, so an empty body is valid.
func ParseBootstrapFileAddress(raw string) (BootstrapFileAddress, error) {
	if raw == "" {
		return BootstrapFileAddress{}, nil
	}
	var a BootstrapFileAddress
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return BootstrapFileAddress{}, rcerr.ErrInvalidAddress
	}
	return a, nil
}

// Emit renders a BootstrapFileAddress deterministically.
func (a BootstrapFileAddress) Emit() string {
	b, _ := json.Marshal(a)
	return string(b)
}
