package antsim

import (
	"context"
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
)

// Workout is the steady effort the simulated sensors report.
type Workout struct {
	HeartRate          float64 // bpm
	Power              float64 // W
	Cadence            float64 // rpm
	Speed              float64 // m/s
	WheelCircumference float64 // m
}

// DefaultWorkout is an easy endurance ride.
func DefaultWorkout() Workout {
	return Workout{
		HeartRate:          132,
		Power:              185,
		Cadence:            88,
		Speed:              8.5,
		WheelCircumference: sensor.DefaultWheelCircumference,
	}
}

// Step advances every simulated sensor by dt and sends one page on each open
// slave channel, in channel order.
func (s *Stick) Step(dt time.Duration) error {
	type out struct {
		ch   uint8
		page [message.PageSize]byte
	}

	s.mu.Lock()
	pages := make([]out, 0, len(s.sensors))
	for ch, src := range s.sensors {
		pages = append(pages, out{ch: ch, page: src.next(dt)})
	}
	s.mu.Unlock()

	slices.SortFunc(pages, func(a, b out) int { return int(a.ch) - int(b.ch) })
	for _, p := range pages {
		if err := s.reply(message.BroadcastData(p.ch, p.page)); err != nil {
			return err
		}
	}
	return nil
}

// RunSensors calls Step every interval until ctx is done.
func (s *Stick) RunSensors(ctx context.Context, interval time.Duration) error {
	ticker := s.config.Clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Step(interval); err != nil {
				return err
			}
		}
	}
}

// attachSensor starts a page source for an opened slave channel. Called with
// s.mu held.
func (s *Stick) attachSensor(c *ChannelInfo) {
	if c.IsMaster() {
		return
	}
	t, ok := sensor.TypeForDeviceType(c.DeviceType)
	if !ok {
		return
	}
	s.sensors[c.Number] = &pageSource{sensorType: t, workout: *s.config.Workout}
}

// pageSource synthesizes the broadcast pages of one sensor.
type pageSource struct {
	sensorType sensor.Type
	workout    Workout

	elapsed  float64 // seconds
	count    uint8
	accPower uint16
}

func (p *pageSource) next(dt time.Duration) [message.PageSize]byte {
	p.elapsed += dt.Seconds()
	p.count++
	p.accPower += uint16(p.workout.Power)

	var page [message.PageSize]byte
	switch p.sensorType {
	case sensor.TypeHeartRate:
		beatTime, beats := p.events(p.workout.HeartRate / 60)
		page[0] = 0x04
		if (p.count/4)%2 == 1 {
			page[0] |= 0x80
		}
		page[1] = 0xFF
		binary.LittleEndian.PutUint16(page[4:6], beatTime)
		page[6] = byte(beats)
		page[7] = byte(p.workout.HeartRate)

	case sensor.TypePower:
		page[0] = 0x10
		page[1] = p.count
		page[2] = 0xFF
		page[3] = byte(p.workout.Cadence)
		binary.LittleEndian.PutUint16(page[4:6], p.accPower)
		binary.LittleEndian.PutUint16(page[6:8], uint16(p.workout.Power))

	case sensor.TypeCadence:
		t, n := p.events(p.workout.Cadence / 60)
		binary.LittleEndian.PutUint16(page[4:6], t)
		binary.LittleEndian.PutUint16(page[6:8], n)

	case sensor.TypeSpeed:
		t, n := p.events(p.wheelRate())
		binary.LittleEndian.PutUint16(page[4:6], t)
		binary.LittleEndian.PutUint16(page[6:8], n)

	case sensor.TypeSpeedAndCadence:
		ct, cn := p.events(p.workout.Cadence / 60)
		wt, wn := p.events(p.wheelRate())
		binary.LittleEndian.PutUint16(page[0:2], ct)
		binary.LittleEndian.PutUint16(page[2:4], cn)
		binary.LittleEndian.PutUint16(page[4:6], wt)
		binary.LittleEndian.PutUint16(page[6:8], wn)

	case sensor.TypeSmartTrainer:
		if p.count%2 == 0 {
			page[0] = 0x10
			page[1] = 25 // trainer
			page[2] = byte(uint64(p.elapsed * 4))
			page[3] = byte(uint64(p.elapsed * p.workout.Speed))
			binary.LittleEndian.PutUint16(page[4:6], uint16(math.Round(p.workout.Speed*1000)))
			page[6] = 0xFF
		} else {
			power := uint16(p.workout.Power) & 0x0FFF
			page[0] = 0x19
			page[1] = p.count
			page[2] = byte(p.workout.Cadence)
			binary.LittleEndian.PutUint16(page[3:5], p.accPower)
			page[5] = byte(power)
			page[6] = byte(power >> 8)
		}
	}
	return page
}

func (p *pageSource) wheelRate() float64 {
	if p.workout.WheelCircumference <= 0 {
		return 0
	}
	return p.workout.Speed / p.workout.WheelCircumference
}

// events returns the event time (1/1024 s) of the last whole revolution and
// the revolution count, for a steady rate in revolutions per second. Both
// wrap at 16 bits like the real counters.
func (p *pageSource) events(rate float64) (eventTime, count uint16) {
	if rate <= 0 {
		return 0, 0
	}
	n := math.Floor(p.elapsed * rate)
	t := math.Round(n / rate * 1024)
	return uint16(uint64(t)), uint16(uint64(n))
}
