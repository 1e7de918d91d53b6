package audio

import (
	"fmt"
	"log"
	"runtime"

	"github.com/gordonklaus/portaudio"
)

// PortAudio stream handles are not safe to touch from more than one OS
// thread. Service pins a single goroutine to its own OS thread and routes
// every engine operation through a command channel so callers never touch
// portaudio directly.
type Service struct {
	cmds   chan command
	Events chan Event
}

type command struct {
	kind string
	arg  any
	resp chan error

	// captureDst and captureOK carry the result of a "capture" command,
	// which needs to return data in addition to an error.
	captureDst []float32
	captureOK  chan bool
}

// NewService starts the dedicated actor goroutine and returns a handle.
// Call Shutdown to stop it and release PortAudio.
func NewService() *Service {
	s := &Service{
		cmds:   make(chan command),
		Events: make(chan Event, 8),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := portaudio.Initialize(); err != nil {
		log.Printf("[audio] portaudio init failed: %v", err)
	}
	defer portaudio.Terminate()

	var engine *Engine

	for cmd := range s.cmds {
		switch cmd.kind {
		case "start":
			args := cmd.arg.([3]int)
			engine = New(args[0], args[1], args[2])
			err := engine.Start()
			if err == nil {
				go s.forwardEvents(engine)
			}
			cmd.resp <- err

		case "stop":
			if engine != nil {
				engine.Stop()
				engine = nil
			}
			cmd.resp <- nil

		case "setMonitoring":
			if engine == nil {
				cmd.resp <- fmt.Errorf("audio: not started")
				continue
			}
			engine.SetLocalMonitoring(cmd.arg.(bool))
			cmd.resp <- nil

		case "enqueue":
			if engine == nil {
				cmd.resp <- fmt.Errorf("audio: not started")
				continue
			}
			engine.EnqueuePlayback(cmd.arg.([]float32))
			cmd.resp <- nil

		case "setInputDevice":
			if engine == nil {
				cmd.resp <- fmt.Errorf("audio: not started")
				continue
			}
			cmd.resp <- engine.SetInputDeviceID(cmd.arg.(int))

		case "setOutputDevice":
			if engine == nil {
				cmd.resp <- fmt.Errorf("audio: not started")
				continue
			}
			cmd.resp <- engine.SetOutputDeviceID(cmd.arg.(int))

		case "capture":
			if engine == nil {
				cmd.captureOK <- false
				continue
			}
			cmd.captureOK <- engine.CaptureFrame(cmd.captureDst)

		case "shutdown":
			if engine != nil {
				engine.Stop()
				engine = nil
			}
			cmd.resp <- nil
			return
		}
	}
}

// forwardEvents reacts to a disconnected device by first trying to fall
// back to the system default; only a fallback failure is surfaced to the
// service's own Events channel, since a successful fallback is already
// handled.
func (s *Service) forwardEvents(e *Engine) {
	for ev := range e.Events {
		var fallbackErr error
		switch ev.Type {
		case InputDeviceDisconnected:
			fallbackErr = s.SetInputDevice(-1)
		case OutputDeviceDisconnected:
			fallbackErr = s.SetOutputDevice(-1)
		}
		if fallbackErr == nil {
			log.Printf("[audio] %v recovered via default-device fallback", ev.Type)
			continue
		}
		log.Printf("[audio] default-device fallback failed: %v", fallbackErr)
		select {
		case s.Events <- ev:
		default:
		}
	}
}

func (s *Service) call(kind string, arg any) error {
	resp := make(chan error, 1)
	s.cmds <- command{kind: kind, arg: arg, resp: resp}
	return <-resp
}

// Start opens capture/playback on the dedicated thread.
func (s *Service) Start(inputDeviceID, outputDeviceID, frameSize int) error {
	return s.call("start", [3]int{inputDeviceID, outputDeviceID, frameSize})
}

// Stop halts the current engine without shutting the actor down.
func (s *Service) Stop() error { return s.call("stop", nil) }

// SetLocalMonitoring toggles capture-to-playback loopback.
func (s *Service) SetLocalMonitoring(enabled bool) error {
	return s.call("setMonitoring", enabled)
}

// EnqueueRemoteAudio feeds a decoded remote frame to playback.
func (s *Service) EnqueueRemoteAudio(frame []float32) error {
	return s.call("enqueue", frame)
}

// SetInputDevice switches the capture device (-1 for default).
func (s *Service) SetInputDevice(id int) error {
	return s.call("setInputDevice", id)
}

// SetOutputDevice switches the playback device (-1 for default).
func (s *Service) SetOutputDevice(id int) error {
	return s.call("setOutputDevice", id)
}

// CaptureFrame pops the oldest unread captured microphone frame into dst,
// returning false if nothing new has arrived since the last call.
func (s *Service) CaptureFrame(dst []float32) bool {
	ok := make(chan bool, 1)
	s.cmds <- command{kind: "capture", captureDst: dst, captureOK: ok}
	return <-ok
}

// Shutdown stops the engine and terminates the actor goroutine.
func (s *Service) Shutdown() error {
	err := s.call("shutdown", nil)
	close(s.cmds)
	return err
}
