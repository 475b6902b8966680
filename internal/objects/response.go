package objects

// ErrorResponse is the JSON error envelope returned by every HTTP endpoint.
type ErrorResponse struct {
	Error Error `json:"error"`
}

// Error carries the HTTP status text and a human-readable message.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
