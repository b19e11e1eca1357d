//go:build linux

package capture

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// x11Enumerator lists monitors via RandR and top-level windows via the
// EWMH _NET_CLIENT_LIST property maintained by the window manager.
type x11Enumerator struct {
	conn     *xgb.Conn
	root     xproto.Window
	hasRandr bool
}

func newX11Enumerator() (*x11Enumerator, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errConfig("x11_connect", fmt.Sprintf("cannot connect to X display: %v", err))
	}
	hasRandr := randr.Init(conn) == nil
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return &x11Enumerator{conn: conn, root: root, hasRandr: hasRandr}, nil
}

func (e *x11Enumerator) close() { e.conn.Close() }

// virtualScreenMonitor is the single-monitor fallback covering the default
// screen, used when RandR is unavailable or reports nothing.
func virtualScreenMonitor(conn *xgb.Conn) Monitor {
	screen := xproto.Setup(conn).DefaultScreen(conn)
	return Monitor{
		ID:          0,
		Name:        "default",
		Width:       int(screen.WidthInPixels),
		Height:      int(screen.HeightInPixels),
		ScaleFactor: 1.0,
	}
}

// randrMonitors lists the active CRTC rectangles in enumeration order.
// Monitor IDs are zero-based indexes into this order, matching the keying
// every other platform's enumerator uses.
func randrMonitors(conn *xgb.Conn, root xproto.Window) ([]Monitor, error) {
	res, err := randr.GetScreenResources(conn, root).Reply()
	if err != nil {
		return nil, errResource("x11_screen_resources", "GetScreenResources failed", err)
	}

	monitors := make([]Monitor, 0, len(res.Crtcs))
	for _, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 {
			continue
		}

		name := ""
		if len(info.Outputs) > 0 {
			outInfo, err := randr.GetOutputInfo(conn, info.Outputs[0], res.ConfigTimestamp).Reply()
			if err == nil {
				name = string(outInfo.Name)
			}
		}

		monitors = append(monitors, Monitor{
			ID:          len(monitors),
			Name:        name,
			X:           int(info.X),
			Y:           int(info.Y),
			Width:       int(info.Width),
			Height:      int(info.Height),
			ScaleFactor: 1.0,
		})
	}
	return monitors, nil
}

func (e *x11Enumerator) Monitors() ([]Monitor, error) {
	if e.hasRandr {
		monitors, err := randrMonitors(e.conn, e.root)
		if err == nil && len(monitors) > 0 {
			return monitors, nil
		}
	}
	return []Monitor{virtualScreenMonitor(e.conn)}, nil
}

func (e *x11Enumerator) Windows() ([]Window, error) {
	netClientList, err := xproto.InternAtom(e.conn, true, uint16(len("_NET_CLIENT_LIST")), "_NET_CLIENT_LIST").Reply()
	if err != nil {
		return nil, errResource("x11_intern_atom", "InternAtom(_NET_CLIENT_LIST) failed", err)
	}
	if netClientList.Atom == 0 {
		return nil, errConfig("x11_enum_windows", "window manager does not publish _NET_CLIENT_LIST")
	}

	prop, err := xproto.GetProperty(e.conn, false, e.root, netClientList.Atom,
		xproto.AtomWindow, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, errResource("x11_get_property", "GetProperty(_NET_CLIENT_LIST) failed", err)
	}

	ids := decodeWindowIDs(prop.Value)
	windows := make([]Window, 0, len(ids))
	for _, id := range ids {
		geom, err := xproto.GetGeometry(e.conn, xproto.Drawable(id)).Reply()
		if err != nil {
			continue
		}
		name := windowName(e.conn, id)
		if name == "" {
			continue
		}
		windows = append(windows, Window{
			Handle: uint64(id),
			Name:   name,
			X:      int(geom.X),
			Y:      int(geom.Y),
			Width:  int(geom.Width),
			Height: int(geom.Height),
		})
	}
	return windows, nil
}

func decodeWindowIDs(data []byte) []xproto.Window {
	ids := make([]xproto.Window, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		id := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		ids = append(ids, xproto.Window(id))
	}
	return ids
}

func windowName(conn *xgb.Conn, win xproto.Window) string {
	netWMName, err := xproto.InternAtom(conn, true, uint16(len("_NET_WM_NAME")), "_NET_WM_NAME").Reply()
	if err == nil && netWMName.Atom != 0 {
		utf8String, err := xproto.InternAtom(conn, true, uint16(len("UTF8_STRING")), "UTF8_STRING").Reply()
		if err == nil {
			prop, err := xproto.GetProperty(conn, false, win, netWMName.Atom, utf8String.Atom, 0, 1024).Reply()
			if err == nil && len(prop.Value) > 0 {
				return string(prop.Value)
			}
		}
	}

	prop, err := xproto.GetProperty(conn, false, win, xproto.AtomWmName, xproto.AtomString, 0, 1024).Reply()
	if err != nil || len(prop.Value) == 0 {
		return ""
	}
	return string(prop.Value)
}
