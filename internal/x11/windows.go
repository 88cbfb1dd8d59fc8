package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
)

// windowHints are the window manager properties set on a new window.
type windowHints struct {
	transientFor xproto.Window
	modal        bool
	alwaysOnTop  bool
	skipTaskbar  bool
	resizable    bool
	x, y         int
	width        int
	height       int
}

func (h windowHints) windowType() string {
	if h.modal || h.transientFor != 0 {
		return "_NET_WM_WINDOW_TYPE_DIALOG"
	}
	return "_NET_WM_WINDOW_TYPE_NORMAL"
}

func (h windowHints) states() []string {
	var states []string
	if h.modal {
		states = append(states, "_NET_WM_STATE_MODAL")
	}
	if h.alwaysOnTop {
		states = append(states, "_NET_WM_STATE_ABOVE")
	}
	if h.skipTaskbar {
		states = append(states, "_NET_WM_STATE_SKIP_TASKBAR")
	}
	return states
}

func (h windowHints) normalHints() *icccm.NormalHints {
	nh := &icccm.NormalHints{
		Flags:  icccm.SizeHintPPosition | icccm.SizeHintPSize,
		X:      h.x,
		Y:      h.y,
		Width:  uint(h.width),
		Height: uint(h.height),
	}
	if !h.resizable {
		nh.Flags |= icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize
		nh.MinWidth, nh.MaxWidth = uint(h.width), uint(h.width)
		nh.MinHeight, nh.MaxHeight = uint(h.height), uint(h.height)
	}
	return nh
}

// configure sets the window manager properties of an unmapped window.
func (c *Connection) configure(win xproto.Window, title string, h windowHints) error {
	if err := c.setTitle(win, title); err != nil {
		return err
	}
	if err := icccm.WmProtocolsSet(c.XUtil, win, []string{"WM_DELETE_WINDOW"}); err != nil {
		return fmt.Errorf("failed to set WM_PROTOCOLS: %w", err)
	}
	if err := icccm.WmNormalHintsSet(c.XUtil, win, h.normalHints()); err != nil {
		return fmt.Errorf("failed to set WM_NORMAL_HINTS: %w", err)
	}
	if h.transientFor != 0 {
		if err := icccm.WmTransientForSet(c.XUtil, win, h.transientFor); err != nil {
			return fmt.Errorf("failed to set WM_TRANSIENT_FOR: %w", err)
		}
	}
	if err := ewmh.WmWindowTypeSet(c.XUtil, win, []string{h.windowType()}); err != nil {
		return fmt.Errorf("failed to set window type: %w", err)
	}
	if states := h.states(); len(states) > 0 {
		if err := ewmh.WmStateSet(c.XUtil, win, states); err != nil {
			return fmt.Errorf("failed to set window state: %w", err)
		}
	}
	return nil
}

func (c *Connection) setTitle(win xproto.Window, title string) error {
	if err := ewmh.WmNameSet(c.XUtil, win, title); err != nil {
		return fmt.Errorf("failed to set _NET_WM_NAME: %w", err)
	}
	if err := icccm.WmNameSet(c.XUtil, win, title); err != nil {
		return fmt.Errorf("failed to set WM_NAME: %w", err)
	}
	return nil
}

// activate asks the window manager to focus win.
//
// Uses a manual _NET_ACTIVE_WINDOW client message; ewmh.ActiveWindowReq
// panics on some xgbutil versions.
func (c *Connection) activate(win xproto.Window) error {
	atom, err := xprop.Atm(c.XUtil, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	const sourceIndication = 2 // pager/direct action
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourceIndication, 0, 0, 0, 0}),
	}

	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		c.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// isDeleteRequest reports whether ev is the WM_DELETE_WINDOW protocol
// message a window manager sends when the user closes a window.
func (c *Connection) isDeleteRequest(ev xevent.ClientMessageEvent) bool {
	if ev.Format != 32 {
		return false
	}
	name, err := xprop.AtomName(c.XUtil, ev.Type)
	if err != nil || name != "WM_PROTOCOLS" {
		return false
	}
	proto, err := xprop.AtomName(c.XUtil, xproto.Atom(ev.Data.Data32[0]))
	return err == nil && proto == "WM_DELETE_WINDOW"
}
