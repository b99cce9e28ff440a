package surface

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// DeviceProfile describes a device-emulation override: viewport geometry,
// scale factor, mobile/touch flags, and user-agent string.
type DeviceProfile struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Scale     float64 `json:"scale"`
	Mobile    bool    `json:"mobile"`
	Touch     bool    `json:"touch"`
	UserAgent string  `json:"userAgent,omitempty"`
}

// Emulate applies a device profile to the surface.
func (s *Surface) Emulate(ctx context.Context, p DeviceProfile) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("surface: emulate: viewport %dx%d out of range", p.Width, p.Height)
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}

	page := s.page.Context(ctx)
	err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             p.Width,
		Height:            p.Height,
		DeviceScaleFactor: scale,
		Mobile:            p.Mobile,
	})
	if err != nil {
		return fmt.Errorf("surface: emulate viewport: %w", err)
	}

	err = proto.EmulationSetTouchEmulationEnabled{
		Enabled:        p.Touch,
		MaxTouchPoints: intPtr(5),
	}.Call(page)
	if err != nil {
		return fmt.Errorf("surface: emulate touch: %w", err)
	}

	if p.UserAgent != "" {
		err = proto.NetworkSetUserAgentOverride{UserAgent: p.UserAgent}.Call(page)
		if err != nil {
			return fmt.Errorf("surface: emulate user agent: %w", err)
		}
	}

	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
	return nil
}

// ClearEmulation removes any device override and restores defaults.
func (s *Surface) ClearEmulation(ctx context.Context) error {
	page := s.page.Context(ctx)
	if err := (proto.EmulationClearDeviceMetricsOverride{}).Call(page); err != nil {
		return fmt.Errorf("surface: clear emulation: %w", err)
	}
	s.mu.Lock()
	s.profile = nil
	s.mu.Unlock()
	return nil
}

// SetRenderedSize records the size at which the host UI renders the surface.
// The coordinate transform diverges from identity whenever this differs from
// the internal viewport.
func (s *Surface) SetRenderedSize(sz Size) {
	s.mu.Lock()
	s.rendered = sz
	s.mu.Unlock()
}

// Viewport returns the current internal viewport size: the emulated profile
// when one is active, else the default viewport.
func (s *Surface) Viewport() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile != nil {
		return Size{Width: s.profile.Width, Height: s.profile.Height}
	}
	return Size{Width: defaultViewportWidth, Height: defaultViewportHeight}
}

// Transform returns the current element-to-screen coordinate transform.
func (s *Surface) Transform() Transform {
	vp := s.Viewport()
	s.mu.Lock()
	rendered := s.rendered
	s.mu.Unlock()
	if rendered.Width <= 0 || rendered.Height <= 0 {
		rendered = vp
	}
	return Transform{Viewport: vp, Rendered: rendered}
}

func intPtr(n int) *int { return &n }
