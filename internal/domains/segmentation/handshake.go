package segmentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrHandshake = errors.New("invalid handshake")

// Handshake is the first text message on a connection. Providers add
// their own fields; only these are read.
type Handshake struct {
	CLI         string `json:"cli"`
	ContentType string `json:"content-type"`
}

// ParseHandshake decodes and validates a handshake message.
func ParseHandshake(msg []byte) (Handshake, error) {
	var hs Handshake
	if err := json.Unmarshal(msg, &hs); err != nil {
		return Handshake{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	hs.CLI = strings.TrimSpace(hs.CLI)
	if hs.CLI == "" {
		return Handshake{}, fmt.Errorf("%w: missing cli", ErrHandshake)
	}
	return hs, nil
}

// ResolveSampleRate picks the session rate from the handshake content type,
// falling back to defaultRate. A zero result means neither was available.
func (h Handshake) ResolveSampleRate(defaultRate int, requireContentType bool) (int, error) {
	if h.ContentType == "" {
		if requireContentType {
			return 0, fmt.Errorf("%w: content-type required", ErrHandshake)
		}
		if defaultRate <= 0 {
			return 0, fmt.Errorf("%w: no sample rate announced or configured", ErrHandshake)
		}
		return defaultRate, nil
	}
	rate, err := ParseContentType(h.ContentType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return rate, nil
}
