package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adGUID is the on-the-wire form of 12345678-1234-1234-1234-123456789012.
var adGUID = []byte{0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x34, 0x12, 0x12, 0x34, 0x12, 0x34, 0x56, 0x78, 0x90, 0x12}

func TestGUIDHandler_GUIDBytesToString(t *testing.T) {
	handler := NewGUIDHandler()

	tests := []struct {
		name     string
		input    []byte
		expected string
		wantErr  bool
	}{
		{
			name:     "active directory byte order",
			input:    adGUID,
			expected: "12345678-1234-1234-1234-123456789012",
		},
		{
			name:     "distinct data fields",
			input:    []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
			expected: "04030201-0605-0807-090a-0b0c0d0e0f10",
		},
		{
			name:    "too short",
			input:   adGUID[:15],
			wantErr: true,
		},
		{
			name:    "empty",
			input:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handler.GUIDBytesToString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
