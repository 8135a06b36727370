package present

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{in: "ff0000", want: color.RGBA{R: 0xff, A: 0xff}},
		{in: "#00ff80", want: color.RGBA{G: 0xff, B: 0x80, A: 0xff}},
		{in: " 0000FF ", want: color.RGBA{B: 0xff, A: 0xff}},
		{in: "fff", wantErr: true},
		{in: "gg0000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolidOnPlainImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	require.NoError(t, Solid{Color: color.RGBA{R: 9, A: 0xff}}.Render(img))
	assert.Equal(t, color.RGBA{R: 9, A: 0xff}, img.RGBAAt(2, 1))
}
