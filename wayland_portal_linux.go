//go:build linux

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/godbus/dbus/v5"
)

// XDG Desktop Portal D-Bus constants.
const (
	portalBus  = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	portalScreenCastIface = "org.freedesktop.portal.ScreenCast"
	portalScreenshotIface = "org.freedesktop.portal.Screenshot"
	portalRequestIface    = "org.freedesktop.portal.Request"

	portalSourceMonitor = uint32(1)
	portalSourceWindow  = uint32(2)

	// Cursor is composited into the frames by the portal backend.
	portalCursorEmbedded = uint32(2)

	// RPC responses arrive within portalCallTimeout; Start is allowed
	// portalPickerTimeout because the compositor shows an interactive
	// picker there and waits on the user.
	portalCallTimeout   = 60 * time.Second
	portalPickerTimeout = 120 * time.Second
)

// portalSession drives a single ScreenCast session through the
// CreateSession -> SelectSources -> Start -> OpenPipeWireRemote dance and
// hands back a PipeWire node ID plus a duplicated remote FD. The session
// owns its bus connection: the PipeWire stream dies with the connection, so
// close() is the single teardown point for both.
type portalSession struct {
	conn          *dbus.Conn
	sessionHandle string
	pipeWireFd    int
	nodeID        uint32
	logger        *slog.Logger
}

func newPortalSession(logger *slog.Logger) *portalSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &portalSession{logger: logger, pipeWireFd: -1}
}

// connect dials the session bus and waits for the portal service to answer
// introspection, retrying briefly since the portal may still be starting.
func (p *portalSession) connect(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < 30; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.conn, err = dbus.ConnectSessionBus()
		if err != nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		portalObj := p.conn.Object(portalBus, portalPath)
		if callErr := portalObj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; callErr != nil {
			p.conn.Close()
			err = callErr
			time.Sleep(200 * time.Millisecond)
			continue
		}
		return nil
	}
	if p.conn == nil {
		return errConfig("wayland_connect", fmt.Sprintf("session bus not running: %v", err))
	}
	return errConfig("wayland_connect", fmt.Sprintf("xdg-desktop-portal unreachable: %v", err))
}

// requestPath builds the per-call Request object path: the caller's unique
// bus name with the leading ":" dropped and every "." replaced by "_", as
// org.freedesktop.portal.Request documents.
func (p *portalSession) requestPath(token string) dbus.ObjectPath {
	sender := p.conn.Names()[0]
	escaped := strings.NewReplacer(":", "", ".", "_").Replace(sender)
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", escaped, token))
}

// subscribeResponse arms the Response-signal match before the triggering
// call is issued, closing the race between subscribing and the portal's
// (possibly immediate) reply.
func (p *portalSession) subscribeResponse(token string) (chan *dbus.Signal, func(), error) {
	path := p.requestPath(token)
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, nil, errProtocol("wayland_subscribe", "could not match portal Response signal", err)
	}
	ch := make(chan *dbus.Signal, 10)
	p.conn.Signal(ch)
	return ch, func() { p.conn.RemoveSignal(ch) }, nil
}

func (p *portalSession) awaitResponse(ctx context.Context, op string, ch chan *dbus.Signal, timeout time.Duration) (map[string]dbus.Variant, error) {
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sig := <-ch:
			if sig.Name != portalRequestIface+".Response" || len(sig.Body) < 2 {
				continue
			}
			code, ok := sig.Body[0].(uint32)
			if !ok {
				continue
			}
			if code != 0 {
				return nil, errPermission(op, fmt.Sprintf("portal request denied (status=%d); the user may have cancelled the picker", code))
			}
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return results, nil
		case <-deadline:
			return nil, errTimeout(op, "timed out waiting for portal response")
		}
	}
}

func (p *portalSession) token(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// open runs the full session setup and leaves p.nodeID / p.pipeWireFd
// populated on success.
func (p *portalSession) open(ctx context.Context, kind SourceKind) error {
	if err := p.connect(ctx); err != nil {
		return err
	}
	if err := p.createSession(ctx); err != nil {
		return err
	}
	if err := p.selectSources(ctx, kind); err != nil {
		return err
	}
	if err := p.start(ctx); err != nil {
		return err
	}
	return p.openRemote()
}

func (p *portalSession) createSession(ctx context.Context) error {
	requestToken := p.token("req")
	sessionToken := p.token("session")

	ch, cancel, err := p.subscribeResponse(requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	obj := p.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(requestToken),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}
	var reqPath dbus.ObjectPath
	if err := obj.Call(portalScreenCastIface+".CreateSession", 0, options).Store(&reqPath); err != nil {
		return errProtocol("wayland_create_session", "CreateSession call failed", err)
	}

	results, err := p.awaitResponse(ctx, "wayland_create_session", ch, portalCallTimeout)
	if err != nil {
		return err
	}
	handle, ok := results["session_handle"].Value().(string)
	if !ok {
		return errProtocol("wayland_create_session", "response missing session_handle", nil)
	}
	p.sessionHandle = handle
	p.logger.Debug("portal session created", "session_handle", handle)
	return nil
}

func (p *portalSession) selectSources(ctx context.Context, kind SourceKind) error {
	requestToken := p.token("req")
	ch, cancel, err := p.subscribeResponse(requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	sourceTypes := portalSourceMonitor
	switch kind {
	case SourceWindow:
		sourceTypes = portalSourceWindow
	case SourceEither:
		sourceTypes = portalSourceMonitor | portalSourceWindow
	}

	obj := p.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(requestToken),
		"types":        dbus.MakeVariant(sourceTypes),
		"cursor_mode":  dbus.MakeVariant(portalCursorEmbedded),
		"persist_mode": dbus.MakeVariant(uint32(0)),
	}
	var reqPath dbus.ObjectPath
	if err := obj.Call(portalScreenCastIface+".SelectSources", 0, dbus.ObjectPath(p.sessionHandle), options).Store(&reqPath); err != nil {
		return errProtocol("wayland_select_sources", "SelectSources call failed", err)
	}
	_, err = p.awaitResponse(ctx, "wayland_select_sources", ch, portalCallTimeout)
	return err
}

func (p *portalSession) start(ctx context.Context) error {
	requestToken := p.token("req")
	ch, cancel, err := p.subscribeResponse(requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	obj := p.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(requestToken),
	}
	var reqPath dbus.ObjectPath
	if err := obj.Call(portalScreenCastIface+".Start", 0, dbus.ObjectPath(p.sessionHandle), "", options).Store(&reqPath); err != nil {
		return errProtocol("wayland_start", "Start call failed", err)
	}

	// The compositor shows its interactive picker here; the long timeout
	// is for the user, not the portal.
	results, err := p.awaitResponse(ctx, "wayland_start", ch, portalPickerTimeout)
	if err != nil {
		return err
	}

	streamsVariant, ok := results["streams"]
	if !ok {
		return errProtocol("wayland_start", "no media-graph stream in portal response", nil)
	}
	nodeID, err := firstStreamNodeID(streamsVariant.Value())
	if err != nil {
		return err
	}
	p.nodeID = nodeID
	p.logger.Debug("portal stream selected", "node_id", nodeID)
	return nil
}

// firstStreamNodeID extracts the node_id of the first returned stream; the
// portal wire type is a(ua{sv}), which godbus can hand back as either
// [][]interface{} or []interface{} depending on signature inference.
func firstStreamNodeID(v interface{}) (uint32, error) {
	switch streams := v.(type) {
	case [][]interface{}:
		if len(streams) == 0 || len(streams[0]) == 0 {
			return 0, errProtocol("wayland_start", "no media-graph stream in portal response", nil)
		}
		id, ok := streams[0][0].(uint32)
		if !ok {
			return 0, errProtocol("wayland_start", "stream node_id was not uint32", nil)
		}
		return id, nil
	case []interface{}:
		if len(streams) == 0 {
			return 0, errProtocol("wayland_start", "no media-graph stream in portal response", nil)
		}
		if id, ok := streams[0].(uint32); ok {
			return id, nil
		}
		if inner, ok := streams[0].([]interface{}); ok && len(inner) > 0 {
			if id, ok := inner[0].(uint32); ok {
				return id, nil
			}
		}
	}
	return 0, errProtocol("wayland_start", fmt.Sprintf("unrecognized streams value: %v", v), nil)
}

// openRemote obtains the PipeWire remote FD and duplicates it into the
// session's ownership; the transport's copy is closed along with the reply.
func (p *portalSession) openRemote() error {
	obj := p.conn.Object(portalBus, portalPath)
	var fd dbus.UnixFD
	err := obj.Call(portalScreenCastIface+".OpenPipeWireRemote", 0, dbus.ObjectPath(p.sessionHandle), map[string]dbus.Variant{}).Store(&fd)
	if err != nil {
		return errProtocol("wayland_open_remote", "OpenPipeWireRemote call failed", err)
	}

	dup, dupErr := unix.Dup(int(fd))
	unix.Close(int(fd))
	if dupErr != nil {
		return errResource("wayland_open_remote", "could not duplicate the PipeWire remote fd", dupErr)
	}
	unix.CloseOnExec(dup)
	p.pipeWireFd = dup
	return nil
}

// dupFd hands out an independent copy of the remote FD for a stream
// consumer; the session keeps ownership of the original.
func (p *portalSession) dupFd() (int, error) {
	dup, err := unix.Dup(p.pipeWireFd)
	if err != nil {
		return -1, errResource("wayland_open_remote", "could not duplicate the PipeWire remote fd", err)
	}
	unix.CloseOnExec(dup)
	return dup, nil
}

func (p *portalSession) close() {
	if p.conn == nil {
		return
	}
	if p.sessionHandle != "" {
		sessionObj := p.conn.Object(portalBus, dbus.ObjectPath(p.sessionHandle))
		sessionObj.Call("org.freedesktop.portal.Session.Close", 0)
		p.sessionHandle = ""
	}
	if p.pipeWireFd >= 0 {
		unix.Close(p.pipeWireFd)
		p.pipeWireFd = -1
	}
	p.nodeID = 0
	p.conn.Close()
	p.conn = nil
}

// screenshotURI asks the portal's Screenshot interface for a one-shot
// capture and returns the validated filesystem path of the temporary file
// the portal wrote. The caller decodes and deletes the file.
func (p *portalSession) screenshotURI(ctx context.Context) (string, error) {
	if p.conn == nil {
		if err := p.connect(ctx); err != nil {
			return "", err
		}
	}

	requestToken := p.token("req")
	ch, cancel, err := p.subscribeResponse(requestToken)
	if err != nil {
		return "", err
	}
	defer cancel()

	obj := p.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(requestToken),
		"interactive":  dbus.MakeVariant(false),
	}
	var reqPath dbus.ObjectPath
	if err := obj.Call(portalScreenshotIface+".Screenshot", 0, "", options).Store(&reqPath); err != nil {
		return "", errProtocol("wayland_screenshot", "portal Screenshot call failed", err)
	}

	results, err := p.awaitResponse(ctx, "wayland_screenshot", ch, portalCallTimeout)
	if err != nil {
		return "", err
	}
	uri, ok := results["uri"].Value().(string)
	if !ok {
		return "", errProtocol("wayland_screenshot", "response missing uri", nil)
	}
	return parseFileURI(uri)
}

// parseFileURI validates a portal-returned file URI and extracts its path.
// Only absolute local paths are accepted; current- and parent-directory
// segments are rejected so a misbehaving portal cannot point the decoder
// outside its own temporary directory.
func parseFileURI(uri string) (string, error) {
	path, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return "", errProtocol("wayland_screenshot", fmt.Sprintf("portal returned a non-file URI: %q", uri), nil)
	}
	if !strings.HasPrefix(path, "/") {
		return "", errProtocol("wayland_screenshot", fmt.Sprintf("portal returned a relative path: %q", path), nil)
	}
	if strings.Contains(path, "/./") || strings.Contains(path, "/../") ||
		strings.HasSuffix(path, "/.") || strings.HasSuffix(path, "/..") {
		return "", errProtocol("wayland_screenshot", fmt.Sprintf("portal returned a path with dot segments: %q", path), nil)
	}
	return path, nil
}
