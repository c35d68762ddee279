package server

import "net/http"

const AnyOrigin = "*"

type OriginChecker struct {
	allowedOrigin string
}

func NewOriginChecker(allowedOrigin string) *OriginChecker {
	return &OriginChecker{
		allowedOrigin,
	}
}

// Check allows requests without an Origin header, such as non-browser
// clients.
func (c *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || c.allowedOrigin == AnyOrigin {
		return true
	}

	return origin == c.allowedOrigin
}

func (c *OriginChecker) AllowedOrigin() string {
	return c.allowedOrigin
}
