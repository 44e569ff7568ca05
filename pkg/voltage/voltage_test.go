package voltage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVoltageLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		mv    float64
		ok    bool
	}{
		{name: "plain record", line: "V\t25440\n", mv: 25440, ok: true},
		{name: "crlf record", line: "V\t23810\r\n", mv: 23810, ok: true},
		{name: "negative value", line: "V\t-120\n", mv: -120, ok: true},
		{name: "other record", line: "I\t-1543\n", ok: false},
		{name: "checksum line", line: "Checksum\t\x08\n", ok: false},
		{name: "prefix is not a match", line: "VPV\t31200\n", ok: false},
		{name: "no tab", line: "V 25440\n", ok: false},
		{name: "garbage value", line: "V\tabc\n", ok: false},
		{name: "empty", line: "\n", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mv, ok := parseVoltageLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.mv, mv)
			}
		})
	}
}
