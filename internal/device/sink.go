package device

import "github.com/rcarmo/go-devscreen/internal/framebuffer"

// Sink is notified after each update message has been applied. It is called
// from the client's receive goroutine and should return quickly; redraw
// throttling is the sink's concern.
type Sink interface {
	FramebufferUpdated(fb *framebuffer.Framebuffer)
}

// StateSink is optionally implemented by a Sink to observe state changes.
type StateSink interface {
	StateChanged(state State)
}

