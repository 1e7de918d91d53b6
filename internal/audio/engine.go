// Package audio drives capture and playback through PortAudio, decoupling
// the PortAudio callback threads from the rest of the program with small
// lock-free ring buffers.
package audio

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 48000
	Channels   = 1
)

// EventType classifies an engine-level event pushed to the owner.
type EventType int

const (
	InputDeviceDisconnected EventType = iota
	OutputDeviceDisconnected
)

func (t EventType) String() string {
	switch t {
	case InputDeviceDisconnected:
		return "input device disconnected"
	case OutputDeviceDisconnected:
		return "output device disconnected"
	default:
		return "unknown event"
	}
}

// Event is pushed on the Events channel when something the caller needs to
// react to happens inside the engine (e.g. a device disappearing).
type Event struct {
	Type EventType
	Err  error
}

// Engine owns one capture stream and one playback stream.
type Engine struct {
	mu sync.Mutex

	inputDeviceID  int
	outputDeviceID int
	frameSize      int

	captureStream  *portaudio.Stream
	playbackStream *portaudio.Stream

	captureBuf  []float32
	playbackBuf []float32

	captureRing  *ring
	playbackRing *ring

	monitoring atomic.Bool
	monitorMu  sync.Mutex // guards monitor ring access from the capture callback

	running atomic.Bool
	Events  chan Event
}

// New creates an Engine for the given input/output device IDs (-1 for
// default) and PCM frame size in samples.
func New(inputDeviceID, outputDeviceID, frameSize int) *Engine {
	return &Engine{
		inputDeviceID:  inputDeviceID,
		outputDeviceID: outputDeviceID,
		frameSize:      frameSize,
		captureRing:    newRing(frameSize),
		playbackRing:   newRing(frameSize),
		Events:         make(chan Event, 8),
	}
}

// Start opens and starts both streams.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return errors.New("audio: engine already running")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	inputDev, err := resolveDevice(devices, e.inputDeviceID, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}
	outputDev, err := resolveDevice(devices, e.outputDeviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}

	e.captureBuf = make([]float32, e.frameSize)
	captureParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: Channels,
			Latency:  inputDev.DefaultLowInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: e.frameSize,
	}
	captureStream, err := portaudio.OpenStream(captureParams, e.captureBuf)
	if err != nil {
		return err
	}

	e.playbackBuf = make([]float32, e.frameSize)
	playbackParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: Channels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: e.frameSize,
	}
	playbackStream, err := portaudio.OpenStream(playbackParams, e.playbackBuf)
	if err != nil {
		captureStream.Close()
		return err
	}

	if err := captureStream.Start(); err != nil {
		captureStream.Close()
		playbackStream.Close()
		return err
	}
	if err := playbackStream.Start(); err != nil {
		captureStream.Close()
		playbackStream.Close()
		return err
	}

	e.captureStream = captureStream
	e.playbackStream = playbackStream
	e.running.Store(true)

	go e.captureLoop()
	go e.playbackLoop()

	return nil
}

func (e *Engine) captureLoop() {
	for e.running.Load() {
		if err := e.captureStream.Read(); err != nil {
			log.Printf("[audio] capture read failed: %v", err)
			e.emitEvent(Event{Type: InputDeviceDisconnected, Err: err})
			return
		}
		e.captureRing.Push(e.captureBuf)

		if e.monitoring.Load() {
			if e.monitorMu.TryLock() {
				e.playbackRing.Push(e.captureBuf)
				e.monitorMu.Unlock()
			}
		}
	}
}

func (e *Engine) playbackLoop() {
	zero := make([]float32, e.frameSize)
	for e.running.Load() {
		if !e.playbackRing.Pop(e.playbackBuf) {
			copy(e.playbackBuf, zero)
		}
		if err := e.playbackStream.Write(); err != nil {
			log.Printf("[audio] playback write failed: %v", err)
			e.emitEvent(Event{Type: OutputDeviceDisconnected, Err: err})
			return
		}
	}
}

func (e *Engine) emitEvent(ev Event) {
	select {
	case e.Events <- ev:
	default:
	}
}

// CaptureFrame pops the oldest unread captured frame, or returns false if
// none is available yet.
func (e *Engine) CaptureFrame(dst []float32) bool {
	return e.captureRing.Pop(dst)
}

// EnqueuePlayback pushes a decoded remote frame into the playback ring.
func (e *Engine) EnqueuePlayback(frame []float32) {
	e.playbackRing.Push(frame)
}

// SetLocalMonitoring toggles feeding captured audio directly back to
// playback, guarded so it never races a playback read mid-copy.
func (e *Engine) SetLocalMonitoring(enabled bool) {
	e.monitoring.Store(enabled)
}

// SetInputDeviceID switches the capture device to id (-1 for default),
// stopping the engine cleanly and starting a new one. The output device is
// left unchanged. If the engine isn't currently running, only the id is
// recorded, for use by the next Start.
func (e *Engine) SetInputDeviceID(id int) error {
	if !e.running.Load() {
		e.inputDeviceID = id
		return nil
	}
	e.Stop()
	e.inputDeviceID = id
	return e.Start()
}

// SetOutputDeviceID switches the playback device to id (-1 for default),
// stopping the engine cleanly, re-allocating the playback ring so nothing
// queued for the old device gets played on the new one, and starting a new
// stream. The input device is left unchanged.
func (e *Engine) SetOutputDeviceID(id int) error {
	if !e.running.Load() {
		e.outputDeviceID = id
		return nil
	}
	e.Stop()
	e.outputDeviceID = id
	e.playbackRing = newRing(e.frameSize)
	return e.Start()
}

// Stop halts both streams. Safe to call when not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}
	e.running.Store(false)
	if e.captureStream != nil {
		e.captureStream.Stop()
		e.captureStream.Close()
	}
	if e.playbackStream != nil {
		e.playbackStream.Stop()
		e.playbackStream.Close()
	}
}
