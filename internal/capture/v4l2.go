package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/bonching/apiculture-iot/internal/config"
)

// grabTimeout bounds the wait for a frame after the mount has settled.
const grabTimeout = 5 * time.Second

// V4L2Camera implements Device using a GStreamer still pipeline:
// v4l2src → videoconvert → videoscale → capsfilter → jpegenc → appsink.
// The pipeline runs for the whole session; Grab takes the next frame
// produced after it is called.
type V4L2Camera struct {
	device string
	width  int
	height int
	warmup time.Duration

	available bool

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	frames   chan []byte
	errs     chan error
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	opened   bool
}

// NewV4L2Camera probes the device once and caches the result. A missing
// device node or GStreamer runtime leaves the camera unavailable; the
// constructor itself never fails.
func NewV4L2Camera(cfg config.CameraConfig) *V4L2Camera {
	c := &V4L2Camera{
		device: cfg.Device,
		width:  cfg.Width,
		height: cfg.Height,
		warmup: time.Duration(cfg.WarmupS) * time.Second,
	}

	if _, err := os.Stat(cfg.Device); err != nil {
		slog.Warn("camera device not present", "device", cfg.Device, "error", err)
		return c
	}

	if err := checkGStreamerAvailable(); err != nil {
		slog.Warn("gstreamer not available, camera disabled", "error", err)
		return c
	}

	c.available = true
	slog.Info("camera initialized", "device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	return c
}

// checkGStreamerAvailable verifies the GStreamer runtime can create the
// capture source element.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("failed to create v4l2src element: %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}

// Available implements Device
func (c *V4L2Camera) Available() bool {
	return c.available
}

// Open implements Device. It builds the still pipeline, sets it playing
// and waits out the sensor warm-up so the first grab is exposed properly.
func (c *V4L2Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return fmt.Errorf("camera not available")
	}
	if c.opened {
		return fmt.Errorf("camera session already open")
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", c.device)

	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")

	capsfilter, _ := gst.NewElement("capsfilter")
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,width=%d,height=%d", c.width, c.height,
	))
	capsfilter.SetProperty("caps", caps)

	jpegenc, _ := gst.NewElement("jpegenc")

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return c.onNewSample(sink)
		},
	})

	pipeline.AddMany(src, videoconvert, videoscale, capsfilter, jpegenc, appsink.Element)
	gst.ElementLinkMany(src, videoconvert, videoscale, capsfilter, jpegenc, appsink.Element)

	c.pipeline = pipeline
	c.appsink = appsink
	c.frames = make(chan []byte, 1)
	c.errs = make(chan error, 1)

	busCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		cancel()
		c.pipeline = nil
		c.appsink = nil
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}

	c.wg.Add(1)
	go c.watchBus(busCtx)

	c.opened = true
	slog.Debug("camera session opened", "device", c.device, "warmup", c.warmup)

	// Let auto-exposure converge before the first grab.
	if err := sleepCtx(ctx, c.warmup); err != nil {
		return err
	}

	return nil
}

// watchBus surfaces pipeline errors while the session is open.
func (c *V4L2Camera) watchBus(ctx context.Context) {
	defer c.wg.Done()

	bus := c.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("camera pipeline reached end of stream")
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("camera pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			select {
			case c.errs <- fmt.Errorf("camera pipeline error: %w", gerr):
			default:
			}
			return
		}
	}
}

// onNewSample is called by GStreamer for every encoded still.
func (c *V4L2Camera) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) == 0 {
		return gst.FlowOK
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case c.frames <- frame:
	default:
		// A frame is already queued; the next grab drains it anyway.
	}

	return gst.FlowOK
}

// Grab implements Device. It discards any frame queued before the call
// so the saved still reflects the current mount position.
func (c *V4L2Camera) Grab(ctx context.Context, path string) error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return fmt.Errorf("camera session not open")
	}
	frames, errs := c.frames, c.errs
	c.mu.Unlock()

	select {
	case <-frames:
	default:
	}

	timer := time.NewTimer(grabTimeout)
	defer timer.Stop()

	select {
	case data := <-frames:
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		slog.Debug("still captured", "path", path, "size_bytes", len(data))
		return nil
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out waiting for camera frame after %v", grabTimeout)
	}
}

// Close implements Device
func (c *V4L2Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil
	}

	c.cancel()
	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("failed to stop camera pipeline", "error", err)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("camera bus watcher stop timeout")
	}

	c.pipeline = nil
	c.appsink = nil
	c.cancel = nil
	c.opened = false

	slog.Debug("camera session closed", "device", c.device)
	return nil
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
