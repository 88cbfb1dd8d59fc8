package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

func (m Monitor) contains(x, y int) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		monitors = append(monitors, Monitor{
			ID:     i,
			Name:   outputName,
			X:      int(crtcInfo.X),
			Y:      int(crtcInfo.Y),
			Width:  int(crtcInfo.Width),
			Height: int(crtcInfo.Height),
		})
	}

	return monitors, nil
}

// ActiveMonitor returns the monitor holding the focused window, falling back
// to the one under the pointer and then the first. The geometry is clipped
// to the current desktop's work area when the window manager publishes one.
func (c *Connection) ActiveMonitor() (*Monitor, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors found")
	}

	var active *Monitor
	if win, err := ewmh.ActiveWindowGet(c.XUtil); err == nil && win != 0 {
		if x, y, ok := c.windowCenter(win); ok {
			active = monitorAt(monitors, x, y)
		}
	}
	if active == nil {
		if pointer, err := xproto.QueryPointer(c.XUtil.Conn(), c.Root).Reply(); err == nil {
			active = monitorAt(monitors, int(pointer.RootX), int(pointer.RootY))
		}
	}
	if active == nil {
		active = &monitors[0]
	}

	if workArea, err := ewmh.WorkareaGet(c.XUtil); err == nil && len(workArea) > 0 {
		desktop := 0
		if current, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil && int(current) < len(workArea) {
			desktop = int(current)
		}
		wa := workArea[desktop]
		clipped := clipToArea(*active, int(wa.X), int(wa.Y), int(wa.Width), int(wa.Height))
		active = &clipped
	}
	return active, nil
}

func (c *Connection) windowCenter(win xproto.Window) (int, int, bool) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return 0, 0, false
	}
	translate, err := xproto.TranslateCoordinates(c.XUtil.Conn(), win, c.Root, 0, 0).Reply()
	if err != nil {
		return 0, 0, false
	}
	return int(translate.DstX) + int(geom.Width)/2, int(translate.DstY) + int(geom.Height)/2, true
}

func monitorAt(monitors []Monitor, x, y int) *Monitor {
	for i := range monitors {
		if monitors[i].contains(x, y) {
			return &monitors[i]
		}
	}
	return nil
}

// clipToArea intersects m with the given rectangle. A disjoint area leaves m
// unchanged.
func clipToArea(m Monitor, x, y, width, height int) Monitor {
	x1 := max(m.X, x)
	y1 := max(m.Y, y)
	x2 := min(m.X+m.Width, x+width)
	y2 := min(m.Y+m.Height, y+height)
	if x2 <= x1 || y2 <= y1 {
		return m
	}
	m.X, m.Y = x1, y1
	m.Width, m.Height = x2-x1, y2-y1
	return m
}

// centerIn returns the origin that centers a width x height window in m,
// pinned to the monitor's top-left corner when the window is larger.
func centerIn(m Monitor, width, height int) (int, int) {
	x := m.X + (m.Width-width)/2
	y := m.Y + (m.Height-height)/2
	return max(x, m.X), max(y, m.Y)
}
