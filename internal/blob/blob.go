// Package blob stores message attachments under generated names.
package blob

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidName = errors.New("invalid blob name")
)

// NameSize is the length of a generated name: 32 lowercase hex digits.
const NameSize = 32

func newName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validName guards Get against names that were not generated here.
func validName(name string) bool {
	if len(name) != NameSize {
		return false
	}
	for _, c := range name {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
