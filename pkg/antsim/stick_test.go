package antsim

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/backkem/antplus/pkg/gatherer"
	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
)

// hostEnd is the host side of a simulated stick with a message log.
type hostEnd struct {
	link link.Link
	g    *gatherer.Gatherer

	mu   sync.Mutex
	msgs []*message.Message
}

func newHostEnd(t *testing.T, s *Stick) *hostEnd {
	t.Helper()
	l, err := s.Finder().Find()
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	h := &hostEnd{link: l, g: gatherer.New(gatherer.Config{})}
	if err := l.Start(h.receive); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return h
}

func (h *hostEnd) receive(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for msg := range h.g.Submit(chunk) {
		h.msgs = append(h.msgs, msg)
	}
}

func (h *hostEnd) send(t *testing.T, msgs ...*message.Message) {
	t.Helper()
	for _, m := range msgs {
		if _, err := h.link.Write(m.Encode()); err != nil {
			t.Fatalf("Write %s: %v", m, err)
		}
	}
}

func (h *hostEnd) received() []*message.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*message.Message(nil), h.msgs...)
}

// waitCount waits until at least n messages have arrived.
func (h *hostEnd) waitCount(t *testing.T, n int) []*message.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := h.received(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("received %d messages, want %d", len(h.received()), n)
	return nil
}

func newTestStick(t *testing.T, config Config) *Stick {
	t.Helper()
	s, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStick_Handshake(t *testing.T) {
	s := newTestStick(t, Config{})
	h := newHostEnd(t, s)

	h.send(t, message.SystemReset(), message.SetNetworkKey(sensor.NetworkNumber, sensor.NetworkKey))
	msgs := h.waitCount(t, 2)

	if msgs[0].ID() != message.IDStartupMessage {
		t.Errorf("first reply = %s, want STARTUP_MESSAGE", msgs[0])
	}
	ev := message.AsChannelEvent(msgs[1])
	if ev.MessageID() != message.IDSetNetworkKey || ev.Code() != message.CodeResponseNoError {
		t.Errorf("second reply = %s", msgs[1])
	}
	if !s.NetworkKeyAccepted() {
		t.Error("NetworkKeyAccepted = false")
	}
}

func TestStick_IgnoreNetworkKey(t *testing.T) {
	s := newTestStick(t, Config{IgnoreNetworkKey: true})
	h := newHostEnd(t, s)

	h.send(t, message.SetNetworkKey(sensor.NetworkNumber, sensor.NetworkKey), message.SystemReset())
	msgs := h.waitCount(t, 1)
	time.Sleep(20 * time.Millisecond)
	msgs = h.received()

	if len(msgs) != 1 || msgs[0].ID() != message.IDStartupMessage {
		t.Errorf("replies = %v, want only STARTUP_MESSAGE", msgs)
	}
}

func TestStick_ChannelLifecycle(t *testing.T) {
	s := newTestStick(t, Config{
		Devices: map[sensor.Type]uint16{sensor.TypeHeartRate: 4242},
	})
	h := newHostEnd(t, s)

	profile := sensor.TypeHeartRate.Profile()
	setup := []*message.Message{
		message.AssignChannel(0, message.ChannelTypeBidirectionalSlave, sensor.NetworkNumber),
		message.SetChannelID(0, 0, profile.DeviceType, 0),
		message.SetChannelPeriod(0, profile.Period),
		message.SetRFFrequency(0, sensor.RFFrequency),
		message.SetSearchTimeout(0, message.SearchTimeoutInfinite),
		message.OpenChannel(0),
	}
	h.send(t, setup...)
	msgs := h.waitCount(t, len(setup))
	for i, m := range msgs {
		ev := message.AsChannelEvent(m)
		if ev.MessageID() != setup[i].ID() || ev.Code() != message.CodeResponseNoError {
			t.Errorf("reply %d = %s, want NO_ERROR for %s", i, m, setup[i].ID())
		}
	}

	chans := s.Channels()
	if len(chans) != 1 {
		t.Fatalf("Channels = %v", chans)
	}
	c := chans[0]
	if !c.Open || c.IsMaster() || c.DeviceType != profile.DeviceType || c.Period != profile.Period ||
		c.RFFrequency != sensor.RFFrequency || c.SearchTimeout != message.SearchTimeoutInfinite {
		t.Errorf("channel = %+v", c)
	}

	// Channel ID request reports the paired device.
	h.send(t, message.RequestMessage(0, message.IDSetChannelID))
	msgs = h.waitCount(t, len(setup)+1)
	id := message.AsChannelID(msgs[len(setup)])
	if id.DeviceNumber() != 4242 || id.DeviceType() != profile.DeviceType {
		t.Errorf("channel ID = %s", msgs[len(setup)])
	}

	// Close answers with a response and the closed event.
	h.send(t, message.CloseChannel(0))
	msgs = h.waitCount(t, len(setup)+3)
	resp := message.AsChannelEvent(msgs[len(setup)+1])
	closed := message.AsChannelEvent(msgs[len(setup)+2])
	if !resp.IsResponseTo(message.IDCloseChannel) || resp.Code() != message.CodeResponseNoError {
		t.Errorf("close response = %s", msgs[len(setup)+1])
	}
	if !closed.IsRFEvent() || closed.Code() != message.CodeEventChannelClosed {
		t.Errorf("close event = %s", msgs[len(setup)+2])
	}

	h.send(t, message.UnassignChannel(0))
	h.waitCount(t, len(setup)+4)
	if len(s.Channels()) != 0 {
		t.Errorf("Channels after unassign = %v", s.Channels())
	}
}

func TestStick_Rejections(t *testing.T) {
	tests := []struct {
		name string
		msg  *message.Message
		code message.Code
	}{
		{"open unassigned", message.OpenChannel(3), message.CodeChannelInWrongState},
		{"close unassigned", message.CloseChannel(3), message.CodeChannelInWrongState},
		{"channel out of range", message.AssignChannel(9, message.ChannelTypeBidirectionalSlave, 1), message.CodeInvalidMessage},
		{"truncated assign", message.New(message.IDAssignChannel, 2), message.CodeInvalidMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStick(t, Config{})
			h := newHostEnd(t, s)
			h.send(t, tc.msg)
			msgs := h.waitCount(t, 1)
			ev := message.AsChannelEvent(msgs[0])
			if ev.MessageID() != tc.msg.ID() || ev.Code() != tc.code {
				t.Errorf("reply = %s, want %s", msgs[0], tc.code)
			}
		})
	}
}

func TestStick_CloseNeverOpened(t *testing.T) {
	s := newTestStick(t, Config{})
	h := newHostEnd(t, s)

	h.send(t,
		message.AssignChannel(1, message.ChannelTypeBidirectionalSlave, 1),
		message.CloseChannel(1),
	)
	msgs := h.waitCount(t, 2)
	if ev := message.AsChannelEvent(msgs[1]); ev.Code() != message.CodeChannelNotOpened {
		t.Errorf("close reply = %s, want CHANNEL_NOT_OPENED", msgs[1])
	}
}

func TestStick_Capabilities(t *testing.T) {
	s := newTestStick(t, Config{Channels: 4})
	h := newHostEnd(t, s)

	h.send(t, message.RequestMessage(0, message.IDCapabilities))
	msgs := h.waitCount(t, 1)
	if msgs[0].ID() != message.IDCapabilities || msgs[0].Data()[0] != 4 {
		t.Errorf("reply = %s", msgs[0])
	}
}

func TestStick_Finder(t *testing.T) {
	s := newTestStick(t, Config{Unplugged: true})
	f := s.Finder()

	if _, err := f.Find(); !errors.Is(err, link.ErrNotFound) {
		t.Fatalf("Find while unplugged = %v, want ErrNotFound", err)
	}

	s.SetPresent(true)
	l, err := f.Find()
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if l.NumChannels() != link.DefaultChannels {
		t.Errorf("NumChannels = %d", l.NumChannels())
	}
	if _, err := f.Find(); !errors.Is(err, ErrInUse) {
		t.Errorf("second Find = %v, want ErrInUse", err)
	}
	l.Close()
}

func TestStick_Step(t *testing.T) {
	s := newTestStick(t, Config{})
	h := newHostEnd(t, s)

	profile := sensor.TypeCadence.Profile()
	h.send(t,
		message.AssignChannel(0, message.ChannelTypeBidirectionalSlave, 1),
		message.SetChannelID(0, 0, profile.DeviceType, 0),
		message.OpenChannel(0),
		message.AssignChannel(1, message.ChannelTypeBidirectionalMaster, 1),
		message.SetChannelID(1, 7, sensor.TypePower.Profile().DeviceType, 5),
		message.OpenChannel(1),
	)
	h.waitCount(t, 6)

	if err := s.Step(time.Second); err != nil {
		t.Fatalf("Step: %v", err)
	}
	msgs := h.waitCount(t, 7)
	time.Sleep(20 * time.Millisecond)
	if n := len(h.received()); n != 7 {
		t.Fatalf("received %d messages, want one page for the slave only", n)
	}
	b := message.AsBroadcast(msgs[6])
	if b.Channel() != 0 {
		t.Errorf("page on channel %d, want 0", b.Channel())
	}

	if err := s.Broadcast(5, [message.PageSize]byte{}); !errors.Is(err, ErrNoChannel) {
		t.Errorf("Broadcast on unassigned channel = %v", err)
	}
}

func TestPageSource(t *testing.T) {
	w := DefaultWorkout()

	t.Run("cadence counters", func(t *testing.T) {
		p := &pageSource{sensorType: sensor.TypeCadence, workout: w}
		var last uint16
		for i := 0; i < 10; i++ {
			page := p.next(time.Second)
			revs := uint16(page[6]) | uint16(page[7])<<8
			if revs < last {
				t.Fatalf("revolutions went backwards: %d < %d", revs, last)
			}
			last = revs
		}
		// 88 rpm for ten seconds.
		if last != 14 {
			t.Errorf("revolutions = %d, want 14", last)
		}
	})

	t.Run("trainer alternates pages", func(t *testing.T) {
		p := &pageSource{sensorType: sensor.TypeSmartTrainer, workout: w}
		first := p.next(250 * time.Millisecond)
		second := p.next(250 * time.Millisecond)
		if first[0] != 0x19 || second[0] != 0x10 {
			t.Errorf("pages = 0x%02X, 0x%02X", first[0], second[0])
		}
		power := uint16(first[5]) | uint16(first[6]&0x0F)<<8
		if power != 185 {
			t.Errorf("power = %d, want 185", power)
		}
	})

	t.Run("heart rate", func(t *testing.T) {
		p := &pageSource{sensorType: sensor.TypeHeartRate, workout: w}
		page := p.next(time.Second)
		if page[7] != 132 || page[0]&0x7F != 0x04 {
			t.Errorf("page = % X", page)
		}
	})
}
