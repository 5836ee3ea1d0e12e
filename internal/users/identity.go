package users

import (
	"strconv"
	"strings"
)

// ParseUserID parses the decimal user id carried by tokens and URL paths.
func ParseUserID(raw string) (int64, error) {
	userID, err := strconv.ParseInt(normalize(raw), 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidIdentity
	}
	return userID, nil
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
