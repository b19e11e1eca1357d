//go:build linux

package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// wlClient is a deliberately minimal, synchronous Wayland client: enough
// wire protocol to walk wl_registry globals and bind wl_output objects for
// monitor enumeration. It is not a general-purpose Wayland binding and
// does not implement the streaming/input protocols; ScreenCast capture
// goes through the portal (wayland_portal_linux.go) instead.
type wlClient struct {
	conn net.Conn
}

const (
	wlDisplayObjectID    = uint32(1)
	wlDisplayGetRegistry = uint16(1)
	wlDisplaySync        = uint16(0)

	wlRegistryBind = uint16(0)

	wlRegistryEventGlobal = uint16(0)

	wlOutputEventGeometry = uint16(0)
	wlOutputEventMode     = uint16(1)
	wlOutputEventDone     = uint16(2)
	wlOutputEventScale    = uint16(3)

	wlCallbackEventDone = uint16(0)

	wlOutputModeCurrent = uint32(0x1)
)

func waylandSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", errConfig("wayland_connect", "XDG_RUNTIME_DIR not set")
	}
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	return filepath.Join(runtimeDir, display), nil
}

func dialWayland() (*wlClient, error) {
	path, err := waylandSocketPath()
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, errConfig("wayland_connect", fmt.Sprintf("cannot reach compositor socket %s: %v", path, err))
	}
	return &wlClient{conn: conn}, nil
}

func (c *wlClient) close() { c.conn.Close() }

// sendRequest writes one message: object id, opcode, then pre-encoded args.
func (c *wlClient) sendRequest(object uint32, opcode uint16, args []byte) error {
	size := uint16(8 + len(args))
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], object)
	binary.LittleEndian.PutUint16(hdr[4:6], opcode)
	binary.LittleEndian.PutUint16(hdr[6:8], size)

	msg := append(append([]byte{}, hdr[:]...), args...)
	_, err := c.conn.Write(msg)
	return err
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	n := uint32(len(s) + 1) // include NUL terminator
	putUint32(buf, n)
	buf.WriteString(s)
	buf.WriteByte(0)
	if pad := (4 - int(n)%4) % 4; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// readMessage reads exactly one wire message (header + body).
func (c *wlClient) readMessage() (object uint32, opcode uint16, body []byte, err error) {
	var hdr [8]byte
	if _, err = readFull(c.conn, hdr[:]); err != nil {
		return 0, 0, nil, err
	}
	object = binary.LittleEndian.Uint32(hdr[0:4])
	opcode = binary.LittleEndian.Uint16(hdr[4:6])
	size := binary.LittleEndian.Uint16(hdr[6:8])
	if size < 8 {
		return 0, 0, nil, errProtocol("wayland_read", "malformed message header", nil)
	}
	body = make([]byte, size-8)
	if len(body) > 0 {
		if _, err = readFull(c.conn, body); err != nil {
			return 0, 0, nil, err
		}
	}
	return object, opcode, body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

func readString(body []byte, off int) (string, int) {
	n := int(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	s := string(body[off : off+n-1]) // drop NUL terminator
	off += n
	if pad := (4 - n%4) % 4; pad > 0 {
		off += pad
	}
	return s, off
}

func readInt32(body []byte, off int) (int32, int) {
	return int32(binary.LittleEndian.Uint32(body[off : off+4])), off + 4
}

func readUint32(body []byte, off int) (uint32, int) {
	return binary.LittleEndian.Uint32(body[off : off+4]), off + 4
}

// enumerateWaylandMonitors performs one short-lived connection to the
// compositor, binds every advertised wl_output, and collects its geometry
// and current mode. It does two roundtrips: the first drains the registry's
// initial global burst (and issues binds), the second waits for the bound
// outputs to report their geometry/mode events.
func enumerateWaylandMonitors() ([]Monitor, error) {
	c, err := dialWayland()
	if err != nil {
		return nil, err
	}
	defer c.close()

	const registryID = uint32(2)
	{
		var args bytes.Buffer
		putUint32(&args, registryID)
		if err := c.sendRequest(wlDisplayObjectID, wlDisplayGetRegistry, args.Bytes()); err != nil {
			return nil, errProtocol("wayland_enum", "get_registry failed", err)
		}
	}

	nextID := uint32(3)
	outputs := map[uint32]*Monitor{}
	outputOrder := []uint32{}

	roundtrip := func() error {
		callbackID := nextID
		nextID++
		var args bytes.Buffer
		putUint32(&args, callbackID)
		if err := c.sendRequest(wlDisplayObjectID, wlDisplaySync, args.Bytes()); err != nil {
			return err
		}
		for {
			obj, opcode, body, err := c.readMessage()
			if err != nil {
				return err
			}
			switch {
			case obj == registryID && opcode == wlRegistryEventGlobal:
				name, off := readUint32(body, 0)
				iface, off2 := readString(body, off)
				version, _ := readUint32(body, off2)
				if iface == "wl_output" {
					id := nextID
					nextID++
					var bindArgs bytes.Buffer
					putUint32(&bindArgs, name)
					putString(&bindArgs, "wl_output")
					putUint32(&bindArgs, version)
					putUint32(&bindArgs, id)
					if err := c.sendRequest(registryID, wlRegistryBind, bindArgs.Bytes()); err != nil {
						return err
					}
					outputs[id] = &Monitor{ID: len(outputOrder), ScaleFactor: 1.0}
					outputOrder = append(outputOrder, id)
				}
			case obj == callbackID && opcode == wlCallbackEventDone:
				return nil
			default:
				if m, ok := outputs[obj]; ok {
					applyOutputEvent(m, opcode, body)
				}
			}
		}
	}

	if err := roundtrip(); err != nil {
		return nil, errProtocol("wayland_enum", "registry roundtrip failed", err)
	}
	if err := roundtrip(); err != nil {
		return nil, errProtocol("wayland_enum", "output roundtrip failed", err)
	}

	result := make([]Monitor, 0, len(outputOrder))
	for _, id := range outputOrder {
		result = append(result, *outputs[id])
	}
	return result, nil
}

func applyOutputEvent(m *Monitor, opcode uint16, body []byte) {
	switch opcode {
	case wlOutputEventGeometry:
		x, off := readInt32(body, 0)
		y, off := readInt32(body, off)
		m.X, m.Y = int(x), int(y)
		// physical_width, physical_height, subpixel
		_, off = readInt32(body, off)
		_, off = readInt32(body, off)
		_, off = readInt32(body, off)
		make_, off := readString(body, off)
		model, _ := readString(body, off)
		if model != "" {
			m.Name = fmt.Sprintf("%s %s", make_, model)
		} else {
			m.Name = make_
		}
	case wlOutputEventMode:
		flags, off := readUint32(body, 0)
		w, off := readInt32(body, off)
		h, _ := readInt32(body, off)
		if flags&wlOutputModeCurrent != 0 {
			m.Width, m.Height = int(w), int(h)
		}
	case wlOutputEventScale:
		factor, _ := readInt32(body, 0)
		if factor > 0 {
			m.ScaleFactor = float64(factor)
		}
	}
}
