package tui

import (
	"strings"
)

// Braille cells are 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a braille dot grid of Width x Height cells, which is
// 2*Width x 4*Height dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y); y grows downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// Plot marks a world-space point (u, v) inside the window [uMin,uMax] x
// [vMin,vMax], with v pointing up. Points outside the window are dropped.
func (c *Canvas) Plot(u, v, uMin, uMax, vMin, vMax float64) {
	if uMax <= uMin || vMax <= vMin {
		return
	}
	dotsW, dotsH := float64(c.Width*2-1), float64(c.Height*4-1)
	x := (u - uMin) / (uMax - uMin) * dotsW
	y := (vMax - v) / (vMax - vMin) * dotsH
	if x < 0 || y < 0 || x > dotsW || y > dotsH {
		return
	}
	c.Set(int(x+0.5), int(y+0.5))
}

// HLine draws a horizontal line at world height v.
func (c *Canvas) HLine(v, vMin, vMax float64) {
	if vMax <= vMin {
		return
	}
	dotsH := float64(c.Height*4 - 1)
	y := (vMax - v) / (vMax - vMin) * dotsH
	if y < 0 || y > dotsH {
		return
	}
	for x := 0; x < c.Width*2; x++ {
		c.Set(x, int(y+0.5))
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}
