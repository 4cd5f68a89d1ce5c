package geo

import (
	"fmt"
	"math"
)

// MaxColorAltitude is the altitude in feet at which the ramp is fully red
const MaxColorAltitude = 40000.0

// RGB is a display colour
type RGB struct {
	R, G, B uint8
}

// String renders the colour the way the map layer expects it
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Hex renders the colour as #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ColorByAltitude maps an altitude to a blue (ground) to red (MaxColorAltitude) ramp
func ColorByAltitude(alt float64) RGB {
	ratio := alt / MaxColorAltitude
	red := Clamp(math.Floor(255*ratio), 0, 255)
	blue := Clamp(math.Floor(255*(1-ratio)), 0, 255)
	return RGB{R: uint8(red), B: uint8(blue)}
}
