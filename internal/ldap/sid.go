package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
)

// SIDHandler converts binary objectSid values to the S-1-5-21-... form.
type SIDHandler struct{}

// NewSIDHandler creates a new SID handler instance.
func NewSIDHandler() *SIDHandler {
	return &SIDHandler{}
}

// ConvertBinarySIDToString converts a binary SID to its string representation.
func (s *SIDHandler) ConvertBinarySIDToString(binarySID []byte) (string, error) {
	// revision, sub-authority count and 6-byte identifier authority
	if len(binarySID) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}
	if want := 8 + 4*int(binarySID[1]); len(binarySID) < want {
		return "", fmt.Errorf("binary SID truncated: expected %d bytes, got %d", want, len(binarySID))
	}

	return objectsid.Decode(binarySID).String(), nil
}
