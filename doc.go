// Package capture is a cross-platform screen-capture engine.
//
// It provides one-shot image capture of a display, a window, or an
// arbitrary screen rectangle; a live stream of pixel frames delivered
// asynchronously to a consumer callback; and enumeration of displays and
// windows plus a permission/readiness diagnostic for the host environment.
//
// A Backend is obtained with New and realizes the same contract on every
// supported OS: Windows (DXGI Desktop Duplication with a GDI fallback),
// macOS (ScreenCaptureKit), and Linux (Wayland via an xdg-desktop-portal
// ScreenCast session, or X11 via MIT-SHM), selected at construction time.
//
// Every delivered Image uses the canonical pixel layout: four bytes per
// pixel, red-green-blue-alpha order, row-major, top-down, tightly packed.
package capture
