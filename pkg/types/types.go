package types

import (
	"fmt"
	"image"
	"math"
)

// Circle is a detected plate boundary in pixel coordinates of the image it was found in
type Circle struct {
	X int `json:"x"`
	Y int `json:"y"`
	R int `json:"r"`
}

// Valid reports whether the circle has a positive radius
func (c Circle) Valid() bool {
	return c.R > 0
}

// Bounds returns the unclamped bounding square of the circle
func (c Circle) Bounds() image.Rectangle {
	return image.Rect(c.X-c.R, c.Y-c.R, c.X+c.R, c.Y+c.R)
}

// Scale returns the circle with all coordinates multiplied by factor
func (c Circle) Scale(factor float64) Circle {
	return Circle{
		X: int(math.Round(float64(c.X) * factor)),
		Y: int(math.Round(float64(c.Y) * factor)),
		R: int(math.Round(float64(c.R) * factor)),
	}
}

func (c Circle) String() string {
	return fmt.Sprintf("(%d, %d, r=%d)", c.X, c.Y, c.R)
}

// Outcome is the result class of a stage, an item or a batch entry
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeWarn    Outcome = "warn"
	OutcomeFailed  Outcome = "failed"
)

// Succeeded reports whether the outcome left a usable artifact behind
func (o Outcome) Succeeded() bool {
	return o == OutcomeOK || o == OutcomeSkipped
}
