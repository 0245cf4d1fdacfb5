package registry

import "github.com/dyluth/signboard/pkg/signboard"

// DefaultOpacity is applied to every new signboard.
const DefaultOpacity = 1.0

// Layout places new signboards in a cascade down and to the right from the
// top-left corner of the screen. Screen coordinates grow upwards.
type Layout struct {
	Screen      signboard.Frame // visible screen area
	BaseOffsetX float64         // distance from the screen's left edge
	BaseOffsetY float64         // distance from the screen's top edge
	Cascade     float64         // extra offset per existing signboard
	Width       float64
	Height      float64
}

// DefaultLayout is used when no screen geometry is known.
func DefaultLayout() Layout {
	return Layout{
		Screen:      signboard.Frame{X: 0, Y: 0, Width: 1200, Height: 800},
		BaseOffsetX: 60,
		BaseOffsetY: 120,
		Cascade:     20,
		Width:       240,
		Height:      48,
	}
}

// FrameAt returns the initial frame for the signboard created at index.
func (l Layout) FrameAt(index int) signboard.Frame {
	offset := float64(index) * l.Cascade
	return signboard.Frame{
		X:      l.Screen.X + l.BaseOffsetX + offset,
		Y:      l.Screen.Y + l.Screen.Height - l.BaseOffsetY - offset,
		Width:  l.Width,
		Height: l.Height,
	}
}
