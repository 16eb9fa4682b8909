package gatherer

import (
	"bytes"
	"slices"
	"testing"

	"github.com/backkem/antplus/pkg/message"
)

func testFrames() []*message.Message {
	return []*message.Message{
		message.ChannelResponse(0, message.IDAssignChannel, message.CodeResponseNoError),
		message.BroadcastData(0, [message.PageSize]byte{0x04, 0, 0, 0, 0x10, 0x27, 0x33, 72}),
		message.SetChannelID(0, 12345, 120, 1),
		message.ChannelRFEvent(1, message.CodeEventChannelClosed),
		message.StartupMessage(0x20),
	}
}

func concat(msgs []*message.Message) []byte {
	var buf []byte
	for _, m := range msgs {
		buf = append(buf, m.Encode()...)
	}
	return buf
}

func collect(g *Gatherer, chunk []byte) []*message.Message {
	return slices.Collect(g.Submit(chunk))
}

func encodeAll(msgs []*message.Message) [][]byte {
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.Encode()
	}
	return out
}

func assertSameFrames(t *testing.T, got, want []*message.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	g, w := encodeAll(got), encodeAll(want)
	for i := range g {
		if !bytes.Equal(g[i], w[i]) {
			t.Errorf("message %d = %X, want %X", i, g[i], w[i])
		}
	}
}

func TestChunkingIndependence(t *testing.T) {
	want := testFrames()
	stream := concat(want)

	tests := []struct {
		name  string
		chunk int
	}{
		{"All at once", len(stream)},
		{"One byte", 1},
		{"Two bytes", 2},
		{"Seven bytes", 7},
		{"Frame straddling", 11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := New(Config{})
			var got []*message.Message
			for chunk := range slices.Chunk(stream, tc.chunk) {
				got = append(got, collect(g, chunk)...)
			}
			assertSameFrames(t, got, want)
			if g.Buffered() != 0 {
				t.Errorf("Buffered() = %d, want 0", g.Buffered())
			}
		})
	}
}

func TestCorruptedFrameDoesNotAffectNext(t *testing.T) {
	bad := message.BroadcastData(2, [message.PageSize]byte{1, 2, 3, 4, 5, 6, 7, 8}).Encode()
	good := message.ChannelResponse(2, message.IDOpenChannel, message.CodeResponseNoError)

	// Flip one bit in every payload byte position in turn.
	for i := message.HeaderSize; i < len(bad)-1; i++ {
		corrupt := bytes.Clone(bad)
		corrupt[i] ^= 0x01

		g := New(Config{})
		got := collect(g, append(corrupt, good.Encode()...))
		assertSameFrames(t, got, []*message.Message{good})

		if g.Stats().ChecksumErrors != 1 {
			t.Errorf("byte %d: ChecksumErrors = %d, want 1", i, g.Stats().ChecksumErrors)
		}
	}
}

func TestGarbageResync(t *testing.T) {
	want := testFrames()
	noise := []byte{0x00, 0xFF, 0x13, 0x37}

	var stream []byte
	stream = append(stream, noise...)
	for _, m := range want {
		stream = append(stream, m.Encode()...)
		stream = append(stream, noise...)
	}

	g := New(Config{})
	got := collect(g, stream)
	assertSameFrames(t, got, want)

	if g.Stats().DiscardedBytes != uint64(len(noise)*(len(want)+1)) {
		t.Errorf("DiscardedBytes = %d, want %d", g.Stats().DiscardedBytes, len(noise)*(len(want)+1))
	}
	if g.Stats().Frames != uint64(len(want)) {
		t.Errorf("Frames = %d, want %d", g.Stats().Frames, len(want))
	}
}

func TestOversizedLengthDropsSyncImmediately(t *testing.T) {
	good := message.OpenChannel(0)

	// A sync byte followed by an impossible LEN must not stall the stream
	// waiting for 200+ bytes.
	stream := append([]byte{message.Sync, 0xC8}, good.Encode()...)

	g := New(Config{})
	got := collect(g, stream)
	assertSameFrames(t, got, []*message.Message{good})

	if g.Stats().FramingErrors != 1 {
		t.Errorf("FramingErrors = %d, want 1", g.Stats().FramingErrors)
	}
}

func TestPartialFrameStaysBuffered(t *testing.T) {
	frame := message.SystemReset().Encode()

	g := New(Config{})
	if got := collect(g, frame[:3]); len(got) != 0 {
		t.Fatalf("got %d messages from a partial frame", len(got))
	}
	if g.Buffered() != 3 {
		t.Fatalf("Buffered() = %d, want 3", g.Buffered())
	}

	got := collect(g, frame[3:])
	assertSameFrames(t, got, []*message.Message{message.SystemReset()})
}

func TestSubmitIsLazyAndRestartable(t *testing.T) {
	want := testFrames()
	g := New(Config{})

	seq := g.Submit(concat(want))

	// Take only the first message.
	var first *message.Message
	for m := range seq {
		first = m
		break
	}
	assertSameFrames(t, []*message.Message{first}, want[:1])

	// The rest are still buffered; ranging again continues.
	rest := slices.Collect(seq)
	assertSameFrames(t, rest, want[1:])
}

func TestReset(t *testing.T) {
	frame := message.SystemReset().Encode()
	g := New(Config{})
	collect(g, frame[:2])
	g.Reset()

	if g.Buffered() != 0 {
		t.Fatalf("Buffered() = %d after Reset", g.Buffered())
	}
	got := collect(g, frame)
	assertSameFrames(t, got, []*message.Message{message.SystemReset()})
}

func TestLongStreamCompacts(t *testing.T) {
	frame := message.ChannelRFEvent(0, message.CodeEventTx).Encode()
	g := New(Config{})

	// Feed frames split across chunks so the head never catches up
	// with the tail at a Submit boundary.
	var n int
	for i := 0; i < 500; i++ {
		n += len(collect(g, frame[:4]))
		n += len(collect(g, append(frame[4:], frame[:1]...)))
		n += len(collect(g, frame[1:]))
	}
	if n != 1000 {
		t.Fatalf("got %d messages, want 1000", n)
	}
	if cap(g.buf) > 4*compactThreshold {
		t.Errorf("buffer grew to %d bytes", cap(g.buf))
	}
}
