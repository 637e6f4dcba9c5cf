// Package audio provides the PCM sources and sinks the pipeline reads from
// and writes to: sound card devices, raw PCM streams and WAV files.
package audio

import (
	"context"
	"encoding/hex"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// BytesPerSample is the size of one signed 16-bit mono sample.
const BytesPerSample = 2

// DeviceConfig selects and sizes a sound card device.
type DeviceConfig struct {
	Source        string  // device name or ID fragment, empty or "default" for the system default
	SampleRate    int     // frames per second
	BufferSeconds float64 // ring capacity per direction
	Playback      bool    // open in duplex mode so Write reaches the speakers
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
}

// ErrCaptureOnly is returned by Write and Flush on a device opened without
// playback.
var ErrCaptureOnly = errors.NewStd("device opened without playback")

// Device is a 16-bit mono sound card stream. Captured audio and queued
// playback each pass through a bounded ring; when a ring is full the oldest
// bytes are discarded. Close releases the device and is safe to call more
// than once.
type Device struct {
	name       string
	sampleRate int
	capacity   int
	duplex     bool

	// mu serializes compound ring operations between the malgo callback and
	// callers.
	mu       sync.Mutex
	capture  *ringbuffer.RingBuffer
	playback *ringbuffer.RingBuffer
	scratch  []byte

	dataReady chan struct{}
	drained   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	droppedCapture  atomic.Uint64
	droppedPlayback atomic.Uint64

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	log logger.Logger
}

// backend picks the native audio backend for the current platform.
func backend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initContext(log logger.Logger) (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{backend()}, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// ListDevices enumerates capture devices.
func ListDevices() ([]DeviceInfo, error) {
	log := GetLogger()
	ctx, err := initContext(log)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "list_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return devices, nil
}

// decodeID turns malgo's hex device ID into its readable form when it is
// printable, e.g. an ALSA "hw:1,0" name.
func decodeID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	id := strings.TrimRight(string(raw), "\x00")
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return hexID
		}
	}
	return id
}

// matchesSource reports whether a device satisfies the configured source.
func matchesSource(source string, info DeviceInfo) bool {
	switch source {
	case "", "default", "sysdefault":
		return info.IsDefault
	}
	return info.ID == source || strings.Contains(info.Name, source) || strings.Contains(info.ID, source)
}

// OpenDevice opens and starts the configured device.
func OpenDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.SampleRate <= 0 || cfg.BufferSeconds <= 0 {
		return nil, errors.Newf("invalid device config: rate %d, buffer %gs", cfg.SampleRate, cfg.BufferSeconds).
			Component("audio").
			Category(errors.CategoryConfiguration).
			Build()
	}

	log := GetLogger()
	capacity := int(cfg.BufferSeconds*float64(cfg.SampleRate)) * BytesPerSample

	d := newDevice(capacity, cfg.SampleRate, cfg.Playback, log)

	malgoCtx, err := initContext(log)
	if err != nil {
		return nil, err
	}
	d.malgoCtx = malgoCtx

	deviceType := malgo.Capture
	if cfg.Playback {
		deviceType = malgo.Duplex
	}
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate) //nolint:gosec // G115: validated positive
	deviceConfig.Alsa.NoMMap = 1

	d.name = "default"
	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		d.release()
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "list_devices").
			Build()
	}
	found := false
	for i := range infos {
		info := DeviceInfo{Index: i, Name: infos[i].Name(), ID: decodeID(infos[i].ID.String()), IsDefault: infos[i].IsDefault != 0}
		if matchesSource(cfg.Source, info) {
			deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
			d.name = info.Name
			found = true
			break
		}
	}
	if !found && cfg.Source != "" && cfg.Source != "default" && cfg.Source != "sysdefault" {
		d.release()
		return nil, errors.Newf("no capture device matches %q", cfg.Source).
			Component("audio").
			Category(errors.CategoryNotFound).
			Context("source", cfg.Source).
			Context("available", len(infos)).
			Build()
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		d.release()
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device", d.name).
			Build()
	}
	d.device = device

	if err := device.Start(); err != nil {
		d.release()
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Context("device", d.name).
			Build()
	}

	log.Info("audio device started",
		logger.String("device", d.name),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Bool("playback", cfg.Playback),
		logger.Int("ring_bytes", capacity))

	return d, nil
}

func newDevice(capacity, sampleRate int, duplex bool, log logger.Logger) *Device {
	capacity -= capacity % BytesPerSample
	return &Device{
		sampleRate: sampleRate,
		capacity:   capacity,
		duplex:     duplex,
		capture:    ringbuffer.New(capacity),
		playback:   ringbuffer.New(capacity),
		scratch:    make([]byte, capacity),
		dataReady:  make(chan struct{}, 1),
		drained:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Name is the selected device name.
func (d *Device) Name() string {
	return d.name
}

// SampleRate is the device frame rate.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// onData runs on the audio thread.
func (d *Device) onData(output, input []byte, _ uint32) {
	if len(input) > 0 {
		d.pushCapture(input)
	}
	if len(output) > 0 {
		d.pullPlayback(output)
	}
}

func (d *Device) onStop() {
	if !d.closed.Load() {
		d.log.Warn("audio device stopped unexpectedly", logger.String("device", d.name))
	}
}

// pushCapture appends captured bytes, discarding the oldest unread bytes
// when the ring is full.
func (d *Device) pushCapture(data []byte) {
	d.mu.Lock()
	dropped := writeDropOldest(d.capture, data, d.capacity, d.scratch)
	d.mu.Unlock()

	if dropped > 0 {
		if d.droppedCapture.Add(uint64(dropped)) == uint64(dropped) {
			d.log.Warn("capture ring full, dropping oldest audio", logger.Int("bytes", dropped))
		}
	}

	select {
	case d.dataReady <- struct{}{}:
	default:
	}
}

// pullPlayback fills output from the playback ring and zeroes the rest.
func (d *Device) pullPlayback(output []byte) {
	d.mu.Lock()
	n, _ := d.playback.Read(output)
	empty := d.playback.Length() == 0
	d.mu.Unlock()

	clear(output[n:])
	if empty {
		select {
		case d.drained <- struct{}{}:
		default:
		}
	}
}

// writeDropOldest writes data into rb, first discarding as many of the
// oldest bytes as needed. Input longer than the ring keeps only its newest
// capacity bytes. It returns the number of bytes discarded.
func writeDropOldest(rb *ringbuffer.RingBuffer, data []byte, capacity int, scratch []byte) int {
	dropped := 0
	if len(data) > capacity {
		dropped += len(data) - capacity
		data = data[len(data)-capacity:]
	}
	if over := len(data) - rb.Free(); over > 0 {
		over += over % BytesPerSample
		n, _ := rb.Read(scratch[:min(over, len(scratch))])
		dropped += n
	}
	_, _ = rb.Write(data)
	return dropped
}

// Read blocks until samples samples are captured and returns them as
// little-endian 16-bit PCM. It returns io.EOF once the device is closed.
func (d *Device) Read(ctx context.Context, samples int) ([]byte, error) {
	need := samples * BytesPerSample
	if need <= 0 || need > d.capacity {
		return nil, errors.Newf("read of %d samples does not fit ring of %d bytes", samples, d.capacity).
			Component("audio").
			Category(errors.CategoryBuffer).
			Build()
	}

	for {
		d.mu.Lock()
		if d.capture.Length() >= need {
			out := make([]byte, need)
			_, err := io.ReadFull(d.capture, out)
			d.mu.Unlock()
			if err != nil {
				return nil, errors.New(err).
					Component("audio").
					Category(errors.CategoryBuffer).
					Build()
			}
			return out, nil
		}
		d.mu.Unlock()

		if d.closed.Load() {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.done:
			return nil, io.EOF
		case <-d.dataReady:
		}
	}
}

// Write queues little-endian 16-bit PCM for playback. When the queue is
// full the oldest queued audio is discarded.
func (d *Device) Write(p []byte) (int, error) {
	if !d.duplex {
		return 0, d.captureOnlyError("write")
	}
	if d.closed.Load() {
		return 0, errors.Newf("device closed").
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	d.mu.Lock()
	dropped := writeDropOldest(d.playback, p, d.capacity, d.scratch)
	d.mu.Unlock()

	if dropped > 0 {
		d.droppedPlayback.Add(uint64(dropped))
	}
	return len(p), nil
}

// Flush blocks until queued playback has been consumed, ctx is done or the
// device closes.
func (d *Device) Flush(ctx context.Context) error {
	if !d.duplex {
		return d.captureOnlyError("flush")
	}
	for {
		d.mu.Lock()
		pending := d.playback.Length()
		d.mu.Unlock()
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-d.drained:
		}
	}
}

func (d *Device) captureOnlyError(op string) error {
	return errors.New(ErrCaptureOnly).
		Component("audio").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("device", d.name).
		Build()
}

// Dropped returns the bytes discarded from the capture and playback rings.
func (d *Device) Dropped() (capture, playback uint64) {
	return d.droppedCapture.Load(), d.droppedPlayback.Load()
}

// Close stops the device and releases the malgo context.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.release()
		close(d.done)
		captured, played := d.Dropped()
		d.log.Info("audio device closed",
			logger.String("device", d.name),
			logger.Uint64("dropped_capture_bytes", captured),
			logger.Uint64("dropped_playback_bytes", played))
	})
	return nil
}

func (d *Device) release() {
	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.malgoCtx != nil {
		_ = d.malgoCtx.Uninit()
		d.malgoCtx.Free()
		d.malgoCtx = nil
	}
}
