package surface

// Rect is a bounding box in viewport CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rect.
func (r Rect) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// CursorPosition is a point in rendered-surface (screen) space, the
// coordinate system the visualization consumer draws in.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform maps internal-viewport coordinates to rendered-surface
// coordinates. The two spaces coincide unless device emulation renders the
// page at a different size than the host displays it.
type Transform struct {
	Viewport Size
	Rendered Size
}

// ScaleX returns the horizontal scale factor (rendered / viewport).
func (t Transform) ScaleX() float64 {
	if t.Viewport.Width <= 0 {
		return 1
	}
	return float64(t.Rendered.Width) / float64(t.Viewport.Width)
}

// ScaleY returns the vertical scale factor (rendered / viewport).
func (t Transform) ScaleY() float64 {
	if t.Viewport.Height <= 0 {
		return 1
	}
	return float64(t.Rendered.Height) / float64(t.Viewport.Height)
}

// Apply maps a viewport point to screen space.
func (t Transform) Apply(x, y float64) CursorPosition {
	return CursorPosition{X: x * t.ScaleX(), Y: y * t.ScaleY()}
}

// ApplyRect maps a viewport rect's center to screen space.
func (t Transform) ApplyRect(r Rect) CursorPosition {
	cx, cy := r.Center()
	return t.Apply(cx, cy)
}

// Identity reports whether the transform is a no-op.
func (t Transform) Identity() bool {
	return t.Viewport == t.Rendered
}
