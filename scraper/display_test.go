package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitDisplay(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
		disp string
		ok   bool
	}{
		{name: "plain", text: "05 | Benta Berri", code: "05", disp: "Benta Berri", ok: true},
		{name: "non-breaking spaces", text: "05\u00a0|\u00a0Benta Berri", code: "05", disp: "Benta Berri", ok: true},
		{name: "no spaces", text: "28|Hospital", code: "28", disp: "Hospital", ok: true},
		{name: "extra separators keep second segment", text: "B1 | Zubieta | Lasarte", code: "B1", disp: "Zubieta", ok: true},
		{name: "empty name", text: "B1 | ", code: "B1", disp: "", ok: true},
		{name: "bare separator", text: "|", ok: false},
		{name: "empty code", text: " \u00a0| Hospital", ok: false},
		{name: "no separator", text: "Seleccione una parada", ok: false},
		{name: "empty", text: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name, ok := splitDisplay(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.code, code)
				assert.Equal(t, tt.disp, name)
			}
		})
	}
}
