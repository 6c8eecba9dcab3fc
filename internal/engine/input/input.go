// Package input turns SDL2 events into the per-frame input state the RTS
// viewer drives its camera with.
package input

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/Faultbox/midgard-rts/internal/engine/camera"
)

// EventType classifies processed events.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseDown
	EventMouseUp
	EventMouseWheel
)

// Event is one processed input event.
type Event struct {
	Type           EventType
	Key            sdl.Scancode
	Width, Height  int
	MouseX, MouseY int
	DX, DY         int
	Button         uint8
	Wheel          float32
}

// Input collects the events of one frame plus held keys and buttons.
type Input struct {
	events  []Event
	keys    map[sdl.Scancode]bool
	buttons map[uint8]bool
	quit    bool

	mouseX, mouseY int
}

// New returns an empty input state.
func New() *Input {
	return &Input{
		events:  make([]Event, 0, 16),
		keys:    make(map[sdl.Scancode]bool),
		buttons: make(map[uint8]bool),
	}
}

// Update polls pending SDL events. It reports true once the window was asked
// to close.
func (i *Input) Update() bool {
	i.events = i.events[:0]
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		i.process(event)
	}
	return i.quit
}

func (i *Input) process(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		i.quit = true
		i.events = append(i.events, Event{Type: EventQuit})

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED {
			i.events = append(i.events, Event{Type: EventWindowResize, Width: int(e.Data1), Height: int(e.Data2)})
		}

	case *sdl.KeyboardEvent:
		down := e.Type == sdl.KEYDOWN
		i.keys[e.Keysym.Scancode] = down
		typ := EventKeyUp
		if down {
			typ = EventKeyDown
		}
		i.events = append(i.events, Event{Type: typ, Key: e.Keysym.Scancode})

	case *sdl.MouseMotionEvent:
		i.mouseX, i.mouseY = int(e.X), int(e.Y)
		i.events = append(i.events, Event{
			Type:   EventMouseMove,
			MouseX: int(e.X),
			MouseY: int(e.Y),
			DX:     int(e.XRel),
			DY:     int(e.YRel),
		})

	case *sdl.MouseButtonEvent:
		down := e.Type == sdl.MOUSEBUTTONDOWN
		i.buttons[e.Button] = down
		i.mouseX, i.mouseY = int(e.X), int(e.Y)
		typ := EventMouseUp
		if down {
			typ = EventMouseDown
		}
		i.events = append(i.events, Event{Type: typ, MouseX: int(e.X), MouseY: int(e.Y), Button: e.Button})

	case *sdl.MouseWheelEvent:
		i.events = append(i.events, Event{Type: EventMouseWheel, Wheel: float32(e.Y)})
	}
}

// IsKeyPressed reports whether key went down this frame.
func (i *Input) IsKeyPressed(key sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == key {
			return true
		}
	}
	return false
}

// IsKeyDown reports whether key is held.
func (i *Input) IsKeyDown(key sdl.Scancode) bool {
	return i.keys[key]
}

// IsButtonDown reports whether a mouse button is held.
func (i *Input) IsButtonDown(button uint8) bool {
	return i.buttons[button]
}

// MousePos returns the last reported cursor position.
func (i *Input) MousePos() (x, y int) {
	return i.mouseX, i.mouseY
}

// Resized returns the last window size reported this frame.
func (i *Input) Resized() (width, height int, ok bool) {
	for _, e := range i.events {
		if e.Type == EventWindowResize {
			width, height, ok = e.Width, e.Height, true
		}
	}
	return width, height, ok
}

// DriveCamera applies this frame's input to cam: WASD or arrows pan, the
// wheel zooms, and dragging with the right button held rotates.
func (i *Input) DriveCamera(cam *camera.RTSCamera) {
	var forward, right float32
	if i.keys[sdl.SCANCODE_W] || i.keys[sdl.SCANCODE_UP] {
		forward++
	}
	if i.keys[sdl.SCANCODE_S] || i.keys[sdl.SCANCODE_DOWN] {
		forward--
	}
	if i.keys[sdl.SCANCODE_D] || i.keys[sdl.SCANCODE_RIGHT] {
		right++
	}
	if i.keys[sdl.SCANCODE_A] || i.keys[sdl.SCANCODE_LEFT] {
		right--
	}
	if forward != 0 || right != 0 {
		cam.Pan(forward, right)
	}

	for _, e := range i.events {
		switch e.Type {
		case EventMouseWheel:
			cam.HandleZoom(e.Wheel)
		case EventMouseMove:
			if i.buttons[sdl.BUTTON_RIGHT] {
				cam.HandleDrag(float32(e.DX), float32(e.DY))
			}
		case EventWindowResize:
			cam.SetScreen(e.Width, e.Height)
		}
	}
}
