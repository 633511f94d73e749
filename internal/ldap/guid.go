package ldap

import (
	"fmt"

	"github.com/google/uuid"
)

// GUIDBytesLength is the size of an Active Directory objectGUID value.
const GUIDBytesLength = 16

// GUIDHandler converts Active Directory GUIDs. AD stores GUIDs in a
// mixed-endian layout that differs from RFC 4122 byte order.
type GUIDHandler struct{}

// NewGUIDHandler creates a new GUID handler instance.
func NewGUIDHandler() *GUIDHandler {
	return &GUIDHandler{}
}

// GUIDBytesToString converts objectGUID bytes to the hyphenated string form.
func (g *GUIDHandler) GUIDBytesToString(guidBytes []byte) (string, error) {
	if len(guidBytes) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	var std [GUIDBytesLength]byte
	// Data1, Data2 and Data3 are little-endian; Data4 is kept as is.
	std[0], std[1], std[2], std[3] = guidBytes[3], guidBytes[2], guidBytes[1], guidBytes[0]
	std[4], std[5] = guidBytes[5], guidBytes[4]
	std[6], std[7] = guidBytes[7], guidBytes[6]
	copy(std[8:], guidBytes[8:])

	id, err := uuid.FromBytes(std[:])
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
