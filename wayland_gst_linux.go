//go:build linux

package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var gstInitOnce sync.Once

func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// gstElementExists reports whether a GStreamer element factory is
// registered, used by the permission diagnostic to flag a missing
// gst-plugin-pipewire install before a stream is attempted.
func gstElementExists(name string) bool {
	initGStreamer()
	return gst.Find(name) != nil
}

// rawFrame is a single decoded BGRA buffer pulled off the appsink, still in
// GStreamer's native byte order; the consumer is responsible for running it
// through pixel.Convert before handing it to application code.
type rawFrame struct {
	data   []byte
	width  int
	height int
}

// gstCapture wraps a pipewiresrc-fed GStreamer pipeline that decodes raw
// BGRA video and delivers frames on a channel, using an appsink configured
// for an uncompressed video/x-raw caps negotiation.
type gstCapture struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	frames   chan rawFrame
	running  atomic.Bool
	stopOnce sync.Once
}

// newGstCapture builds a pipeline that reads PipeWire node nodeID over the
// already-open remote fd and lands raw BGRA frames in appsink.
func newGstCapture(fd int, nodeID uint32) (*gstCapture, error) {
	initGStreamer()

	pipelineStr := fmt.Sprintf(
		"pipewiresrc fd=%d path=%d ! videoconvert ! video/x-raw,format=BGRA ! appsink name=videosink",
		fd, nodeID,
	)
	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, errResource("wayland_gst_pipeline", "failed to parse capture pipeline", err)
	}

	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errResource("wayland_gst_pipeline", "videosink element missing", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, errResource("wayland_gst_pipeline", "videosink is not an appsink", nil)
	}

	g := &gstCapture{
		pipeline: pipeline,
		sink:     sink,
		frames:   make(chan rawFrame, 4),
	}
	return g, nil
}

func (g *gstCapture) start() error {
	if g.running.Load() {
		return nil
	}
	g.sink.SetProperty("emit-signals", true)
	g.sink.SetProperty("max-buffers", uint(2))
	g.sink.SetProperty("drop", true)
	g.sink.SetProperty("sync", false)
	g.sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: g.onNewSample})

	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return errResource("wayland_gst_start", "failed to set pipeline playing", err)
	}
	g.running.Store(true)
	go g.watchBus()
	return nil
}

func (g *gstCapture) onNewSample(sink *app.Sink) gst.FlowReturn {
	if !g.running.Load() {
		return gst.FlowEOS
	}
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	data := make([]byte, len(mapInfo.Bytes()))
	copy(data, mapInfo.Bytes())

	caps := sample.GetCaps()
	width, height := capsDimensions(caps)

	frame := rawFrame{data: data, width: width, height: height}
	select {
	case g.frames <- frame:
	default:
	}
	return gst.FlowOK
}

func (g *gstCapture) watchBus() {
	bus := g.pipeline.GetPipelineBus()
	if bus == nil {
		return
	}
	for g.running.Load() {
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS, gst.MessageError:
			g.stop()
			return
		}
	}
}

func (g *gstCapture) stop() {
	g.stopOnce.Do(func() {
		g.running.Store(false)
		if g.pipeline != nil {
			g.pipeline.SetState(gst.StateNull)
		}
		close(g.frames)
	})
}

// capsDimensions extracts width/height from a negotiated video/x-raw caps
// string; falls back to zero if the structure cannot be parsed, and the
// consumer (waylandBackend.toImage) rejects such frames.
func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	s := caps.GetStructureAt(0)
	if s == nil {
		return 0, 0
	}
	width, werr := s.GetValue("width")
	height, herr := s.GetValue("height")
	if werr != nil || herr != nil {
		return 0, 0
	}
	w, _ := width.(int)
	h, _ := height.(int)
	return w, h
}
