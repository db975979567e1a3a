// Package protocol implements the device screen wire format: inbound batches
// of 8-byte pixel update records and the outbound 5-byte touch command.
package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rcarmo/go-devscreen/internal/codec"
	"github.com/rcarmo/go-devscreen/internal/framebuffer"
	"github.com/rcarmo/go-devscreen/internal/logging"
)

const (
	// UpdateRecordSize is the length of one pixel update record.
	UpdateRecordSize = 8

	// DeviceStride is the native row width of the reference device. It is
	// only used to derive diagnostic coordinates; writes use the raw index.
	DeviceStride = 360
)

// PixelUpdate is one decoded record: a linear pixel index and a packed RGB565 color.
type PixelUpdate struct {
	Index uint32
	Color uint32
}

// Position returns the diagnostic device coordinates of the update.
func (u PixelUpdate) Position() (x, y uint32) {
	return u.Index % DeviceStride, u.Index / DeviceStride
}

// Result summarises one decode pass.
type Result struct {
	// Applied counts records written to the framebuffer.
	Applied int
	// Dropped counts records whose index fell outside the framebuffer.
	Dropped int
	// Trailing is the number of bytes left over after the last whole record.
	Trailing int
}

// decodeRecord reads one update record from the first UpdateRecordSize bytes of rec.
func decodeRecord(rec []byte) PixelUpdate {
	return PixelUpdate{
		Index: binary.LittleEndian.Uint32(rec[0:4]),
		Color: binary.LittleEndian.Uint32(rec[4:8]),
	}
}

// Apply decodes buf and writes each record to w in arrival order, so later
// records for the same index win. A trailing partial record is discarded.
// log may be nil.
func Apply(buf []byte, w framebuffer.PixelWriter, log *logging.Logger) Result {
	res := Result{Trailing: len(buf) % UpdateRecordSize}

	debug := log.Enabled(logging.LevelDebug)
	var trace strings.Builder

	for off := 0; off+UpdateRecordSize <= len(buf); off += UpdateRecordSize {
		u := decodeRecord(buf[off : off+UpdateRecordSize])

		r, g, b := codec.DecodeColor(u.Color)

		if debug {
			x, y := u.Position()
			fmt.Fprintf(&trace, "(%d,%d:%d:%d,%d,%d) ", x, y, u.Color, r, g, b)
		}

		if w.WritePixel(int(u.Index), r, g, b) {
			res.Applied++
		} else {
			res.Dropped++
		}
	}

	if debug {
		log.Debug("updates applied=%d dropped=%d trailing=%d %s", res.Applied, res.Dropped, res.Trailing, trace.String())
	}

	return res
}

// ApplyUpdates decodes buf into fb as a single atomic batch.
func ApplyUpdates(buf []byte, fb *framebuffer.Framebuffer, log *logging.Logger) Result {
	var res Result

	fb.Batch(func(w framebuffer.PixelWriter) {
		res = Apply(buf, w, log)
	})

	return res
}
