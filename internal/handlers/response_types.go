package handlers

import "github.com/xpanvictor/voxgate/internal/repository/clip"

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SessionsResponse lists the calls currently bound to a connection.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// ClipsResponse lists stored clips for one call, newest first.
type ClipsResponse struct {
	Session string        `json:"session"`
	Clips   []clip.Record `json:"clips"`
}

// PlaybackResponse is returned once a playback has been scheduled.
type PlaybackResponse struct {
	Message string `json:"message"`
	Session string `json:"session"`
	Bytes   int    `json:"bytes"`
	Clip    string `json:"clip,omitempty"`
}
