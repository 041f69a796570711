// Package util provides utility functions for the FocusLoop application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateDetectionID generates a unique detection ID with "det_" prefix.
func GenerateDetectionID() string {
	return GenerateRandomID("det_", 32)
}

// GenerateTraceID generates a unique trace event ID with "tr_" prefix.
func GenerateTraceID() string {
	return GenerateRandomID("tr_", 32)
}

// GenerateMemoryItemID generates a unique working-memory item ID with "wm_" prefix.
func GenerateMemoryItemID() string {
	return GenerateRandomID("wm_", 32)
}

// GenerateInteractionID generates a unique interaction ID with "ix_" prefix.
func GenerateInteractionID() string {
	return GenerateRandomID("ix_", 32)
}
