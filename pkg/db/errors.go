package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var duplicateMarkers = []string{
	"duplicate key value",
	"UNIQUE constraint failed",
}

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation. When constraintName is provided, the helper looks for the
// constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	for _, marker := range duplicateMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
