// Package gatherer reassembles ANT frames from the raw byte chunks delivered
// by a serial link.
//
// Chunks may split frames anywhere and may contain line noise. The gatherer
// scans for the sync byte, waits for the announced frame length and hands
// complete frames to the message codec. A frame that fails validation costs
// only its sync byte: scanning resumes one byte later, so a corrupted frame
// never swallows the valid frame behind it.
//
// A Gatherer is not safe for concurrent use. Its owner serializes calls.
package gatherer

import (
	"bytes"
	"errors"
	"iter"

	"github.com/backkem/antplus/pkg/message"
	"github.com/pion/logging"
)

// compactThreshold is the number of consumed head bytes after which the
// buffer is shifted back to the start of its backing array.
const compactThreshold = 512

// Stats counts what the gatherer has seen since creation or the last Reset.
type Stats struct {
	// Frames is the number of messages produced.
	Frames uint64

	// DiscardedBytes counts bytes dropped while hunting for a sync byte,
	// including sync bytes of rejected frames.
	DiscardedBytes uint64

	// ChecksumErrors counts frames rejected for a bad checksum.
	ChecksumErrors uint64

	// FramingErrors counts frames rejected for any other reason.
	FramingErrors uint64
}

// Config configures a Gatherer.
type Config struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Gatherer buffers link bytes and yields framed messages.
type Gatherer struct {
	buf   []byte
	head  int
	stats Stats
	log   logging.LeveledLogger
}

// New creates an empty gatherer.
func New(config Config) *Gatherer {
	g := &Gatherer{}
	if config.LoggerFactory != nil {
		g.log = config.LoggerFactory.NewLogger("ant-gatherer")
	}
	return g
}

// Submit appends chunk to the buffer and returns the sequence of messages
// that can now be framed.
//
// The sequence is lazy: frames are cut from the buffer only as they are
// consumed. If the consumer stops early, the remaining bytes stay buffered
// and ranging over the sequence again (or the next Submit) picks them up.
func (g *Gatherer) Submit(chunk []byte) iter.Seq[*message.Message] {
	g.compact()
	g.buf = append(g.buf, chunk...)
	if g.log != nil && len(chunk) > 0 {
		g.log.Tracef("rx %d bytes, %d buffered", len(chunk), g.Buffered())
	}

	return func(yield func(*message.Message) bool) {
		for {
			msg, ok := g.Next()
			if !ok || !yield(msg) {
				return
			}
		}
	}
}

// Next cuts the next complete frame from the buffer.
// It returns false when the buffer holds no complete frame.
func (g *Gatherer) Next() (*message.Message, bool) {
	for {
		pending := g.buf[g.head:]

		// Hunt for sync; everything before it is garbage.
		i := bytes.IndexByte(pending, message.Sync)
		if i < 0 {
			g.discard(len(pending))
			return nil, false
		}
		if i > 0 {
			g.discard(i)
			pending = pending[i:]
		}

		frameLen, ok := message.FrameLength(pending)
		if !ok {
			return nil, false
		}
		if int(pending[1]) > message.MaxDataSize {
			g.reject(message.ErrPayloadTooLong)
			continue
		}
		if len(pending) < frameLen {
			return nil, false
		}

		msg, err := message.Parse(pending[:frameLen])
		if err != nil {
			g.reject(err)
			continue
		}

		g.head += frameLen
		g.stats.Frames++
		return msg, true
	}
}

// Buffered returns the number of bytes waiting for a complete frame.
func (g *Gatherer) Buffered() int {
	return len(g.buf) - g.head
}

// Stats returns the counters.
func (g *Gatherer) Stats() Stats {
	return g.stats
}

// Reset drops all buffered bytes and clears the counters.
// Used when the link underneath is replaced.
func (g *Gatherer) Reset() {
	g.buf = g.buf[:0]
	g.head = 0
	g.stats = Stats{}
}

// reject drops the sync byte of a frame that failed validation.
func (g *Gatherer) reject(err error) {
	if errors.Is(err, message.ErrBadChecksum) {
		g.stats.ChecksumErrors++
	} else {
		g.stats.FramingErrors++
	}
	if g.log != nil {
		g.log.Warnf("dropping sync byte: %v", err)
	}
	g.discard(1)
}

func (g *Gatherer) discard(n int) {
	g.head += n
	g.stats.DiscardedBytes += uint64(n)
}

func (g *Gatherer) compact() {
	if g.head == 0 {
		return
	}
	if g.head == len(g.buf) {
		g.buf = g.buf[:0]
		g.head = 0
		return
	}
	if g.head < compactThreshold {
		return
	}
	n := copy(g.buf, g.buf[g.head:])
	g.buf = g.buf[:n]
	g.head = 0
}
