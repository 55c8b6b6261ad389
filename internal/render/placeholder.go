package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
)

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder returns the fixed image substituted when a render fails, so a
// pending genome still gets a message (and rating buttons) in the channel.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 512, 512))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 40, G: 40, B: 48, A: 255}), image.Point{}, draw.Src)

		// Diagonal stripe so the failure image is recognizable at a glance
		stripe := color.RGBA{R: 150, G: 60, B: 60, A: 255}
		for x := 0; x < 512; x++ {
			for w := -8; w <= 8; w++ {
				y := x + w
				if y >= 0 && y < 512 {
					img.SetRGBA(x, y, stripe)
				}
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding an in-memory RGBA cannot fail; keep a non-nil value anyway
			placeholderPNG = []byte{}
			return
		}
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}
