// Package utils holds small helpers shared across handler code, mostly
// around parsing pagination query parameters for the member and message
// listing endpoints.
package utils

import "strconv"

// AtoiDefault converts a string to an int, falling back to def when the
// string is empty or not a valid integer. Handlers use it for the "page"
// and "size" query parameters, so a missing or garbled value degrades to
// the documented default instead of an error.
//
// Example:
//
//	page := utils.AtoiDefault(c.Query("page"), 1)
//	size := utils.AtoiDefault(c.Query("size"), 20)
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
