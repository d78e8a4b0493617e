// Package driver defines the render-driver contract the stream layer wraps:
// frame channels that carry one producer's frames to whichever consumers
// imported the channel's handle.
//
// A channel is a single-slot mailbox. Present overwrites the slot and bumps
// the sequence number; Latest reads whatever is in the slot right now.
package driver

import "framelink/pkg/handle"

// Frame is one rendered image. Pixels are tightly packed RGBA8, so
// len(Pix) == Width*Height*4.
type Frame struct {
    Width  int
    Height int
    Pix    []byte
}

// Size returns the number of pixel bytes a frame of w x h needs.
func Size(w, h int) int { return w * h * 4 }

// Valid reports whether Pix matches the declared dimensions.
func (f Frame) Valid() bool {
    return f.Width > 0 && f.Height > 0 && len(f.Pix) == Size(f.Width, f.Height)
}

// Channel is one frame channel as seen from a single process.
type Channel interface {
    // ID is a stable identifier shared by every process that opened the channel.
    ID() string
    // Export returns a new transferable handle for the channel. The caller owns it.
    Export() (handle.Handle, error)
    // Present copies f into the slot and returns its sequence number.
    Present(f Frame) (uint64, error)
    // Seq returns the sequence number of the most recent Present (0 if none).
    Seq() uint64
    // Latest returns the newest frame and its sequence number without blocking.
    // ok is false when a consistent read was not possible right now.
    Latest(dst []byte) (seq uint64, f Frame, ok bool, err error)
    // Destroyed reports whether the producer destroyed the channel.
    Destroyed() bool
    // Close releases local resources. For the creating side it also marks the
    // channel destroyed for every importer.
    Close() error
}

// Driver allocates and imports channels.
type Driver interface {
    Name() string
    // CreateChannel allocates a channel able to carry frames up to slotBytes.
    CreateChannel(slotBytes int) (Channel, error)
    // OpenChannel imports a channel from a handle received from another
    // process, taking ownership of h.
    OpenChannel(h handle.Handle) (Channel, error)
}
