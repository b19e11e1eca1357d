//go:build linux

package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/BurntSushi/xgb/shm"
	"github.com/godbus/dbus/v5"
)

// linuxPermissionChecker runs the host-environment readiness diagnostic:
// confirm a display session exists, and that the protocol-specific capture
// path (portal + PipeWire, or X11 + MIT-SHM) is actually reachable, before
// a caller attempts to construct a Backend.
type linuxPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return linuxPermissionChecker{}
}

func (linuxPermissionChecker) CheckPermission(ctx context.Context) (PermissionReport, error) {
	switch sessionType() {
	case "wayland":
		return checkWaylandReadiness(ctx)
	case "x11":
		return checkX11Readiness()
	default:
		return PermissionReport{
			Status:  PermissionError,
			Summary: "no display session detected",
			Details: []string{
				"neither WAYLAND_DISPLAY nor DISPLAY is set",
				"run from inside a graphical session, or export the variable matching your display server",
			},
		}, nil
	}
}

// portalBackendPackages maps a compositor family (from XDG_CURRENT_DESKTOP)
// to the portal backend package that serves its ScreenCast interface.
var portalBackendPackages = map[string]string{
	"gnome":    "xdg-desktop-portal-gnome",
	"kde":      "xdg-desktop-portal-kde",
	"sway":     "xdg-desktop-portal-wlr",
	"wlroots":  "xdg-desktop-portal-wlr",
	"hyprland": "xdg-desktop-portal-hyprland",
}

// portalInstallHints names the portal backend package for the desktop in
// XDG_CURRENT_DESKTOP when it is recognized, and otherwise lists one
// package per compositor family.
func portalInstallHints() []string {
	desktop := strings.ToLower(os.Getenv("XDG_CURRENT_DESKTOP"))
	for family, pkg := range portalBackendPackages {
		if strings.Contains(desktop, family) {
			return []string{fmt.Sprintf("install %s for your desktop", pkg)}
		}
	}
	return []string{
		"install the portal backend for your compositor: xdg-desktop-portal-gnome, xdg-desktop-portal-kde, xdg-desktop-portal-wlr, or xdg-desktop-portal-hyprland",
	}
}

func checkWaylandReadiness(ctx context.Context) (PermissionReport, error) {
	var details []string
	status := PermissionOK

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "session bus not running",
			Details: []string{err.Error(), "a D-Bus session bus is required for the screen-cast portal"},
		}, nil
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	portalObj := conn.Object(portalBus, portalPath)
	var introspection string
	if err := portalObj.CallWithContext(ctx, "org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&introspection); err != nil {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "xdg-desktop-portal is not running",
			Details: append([]string{err.Error(), "install xdg-desktop-portal"}, portalInstallHints()...),
		}, nil
	}
	if !strings.Contains(introspection, portalScreenCastIface) {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "the desktop portal has no ScreenCast interface",
			Details: append([]string{"xdg-desktop-portal is running but no backend provides org.freedesktop.portal.ScreenCast"}, portalInstallHints()...),
		}, nil
	}
	details = append(details, "ScreenCast portal interface available on the session bus")

	if err := probePipeWire(ctx); err != nil {
		status = PermissionError
		details = append(details, err.Error(), "install and start pipewire; frames are transported over it on Wayland")
	} else {
		details = append(details, "PipeWire daemon reachable")
	}

	if !gstElementExists("pipewiresrc") {
		if status == PermissionOK {
			status = PermissionWarning
		}
		details = append(details, "GStreamer element pipewiresrc not found; install gst-plugin-pipewire")
	} else {
		details = append(details, "pipewiresrc element available")
	}

	summary := "Wayland portal capture path is reachable"
	if status == PermissionError {
		summary = "Wayland portal capture path is not usable"
	}
	return PermissionReport{Status: status, Summary: summary, Details: details}, nil
}

// probePipeWire asks the PipeWire daemon for its core info. The probe runs
// the CLI with an explicit argument vector; no shell is involved.
func probePipeWire(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "pw-cli", "info", "0")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pw-cli info 0 failed: %w (is the pipewire daemon running?)", err)
	}
	return nil
}

func checkX11Readiness() (PermissionReport, error) {
	enum, err := newX11Enumerator()
	if err != nil {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "cannot connect to the X server",
			Details: []string{err.Error(), "check DISPLAY and X authority (~/.Xauthority) for this user"},
		}, nil
	}
	defer enum.close()

	details := []string{fmt.Sprintf("connected to X display %s", os.Getenv("DISPLAY"))}
	if err := shm.Init(enum.conn); err != nil {
		details = append(details, "MIT-SHM extension unavailable; capture falls back to socket GetImage")
		return PermissionReport{Status: PermissionWarning, Summary: "X11 capture path is reachable without MIT-SHM", Details: details}, nil
	}
	details = append(details, "MIT-SHM extension available")
	return PermissionReport{Status: PermissionOK, Summary: "X11 MIT-SHM capture path is reachable", Details: details}, nil
}
