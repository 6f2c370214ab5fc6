package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/rexlx/drizzle/internal"
)

// benchImage is a small solid PNG, tinted per bot so uploads differ.
func benchImage(id int) internal.File {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	c := color.RGBA{R: uint8(id * 37), G: uint8(id * 91), B: 200, A: 255}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return internal.FileFromBytes(fmt.Sprintf("bench_%d.png", id), buf.Bytes())
}
