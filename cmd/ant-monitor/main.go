// ant-monitor pairs with ANT+ fitness sensors and prints what they report.
//
// Usage:
//
//	ant-monitor [options]
//
// With -master, values read from the paired sensors are re-broadcast on
// master channels of the given types, so another head unit can pick them up.
// With a smart trainer paired, the rider weight and -slope are sent to it.
//
// Example:
//
//	ant-monitor -port /dev/ttyUSB0 -search hr,fec -slope 2.5
//	ant-monitor -simulate -search sc,power -duration 30s
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/backkem/antplus/pkg/actuator"
	"github.com/backkem/antplus/pkg/antsim"
	"github.com/backkem/antplus/pkg/dispatch"
	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/pion/logging"
)

func main() {
	opts := ParseFlags()
	if err := run(opts); err != nil {
		log.Fatalf("ant-monitor: %v", err)
	}
}

func run(opts Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	lf := logging.NewDefaultLoggerFactory()
	if opts.Verbose {
		lf.DefaultLogLevel = logging.LogLevelDebug
	}

	var finder link.Finder = &link.SerialFinder{
		Ports: opts.Ports,
		Template: link.SerialConfig{
			BaudRate:      opts.BaudRate,
			Channels:      opts.Channels,
			LoggerFactory: lf,
		},
	}
	if opts.Simulate {
		stick, err := antsim.New(antsim.Config{Channels: opts.Channels, LoggerFactory: lf})
		if err != nil {
			return fmt.Errorf("create simulator: %w", err)
		}
		defer stick.Close()
		go stick.RunSensors(ctx, 250*time.Millisecond)
		finder = stick.Finder()
	}

	d, err := dispatch.New(dispatch.Config{
		Finder:        finder,
		LoggerFactory: lf,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	defer d.Close()

	m := &monitor{opts: opts, d: d}
	d.Subscribe(m.callbacks())

	act, err := actuator.New(actuator.Config{
		Trainer:       d,
		UserWeight:    opts.UserWeight,
		BikeWeight:    opts.BikeWeight,
		LoggerFactory: lf,
	})
	if err != nil {
		return fmt.Errorf("create actuator: %w", err)
	}
	defer act.Close()
	m.act = act

	d.Initialize()
	<-ctx.Done()

	log.Println("Shutting down...")
	closed := make(chan struct{})
	var once sync.Once
	unsubscribe := d.Subscribe(dispatch.Callbacks{
		OnAllChannelsClosed: func() { once.Do(func() { close(closed) }) },
	})
	defer unsubscribe()
	if d.IsInitialized() {
		d.CloseAllChannels()
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			log.Println("channels did not close in time")
		}
	}
	return nil
}

// monitor prints dispatcher events and reacts to them.
type monitor struct {
	opts Options
	d    *dispatch.Dispatcher
	act  *actuator.Actuator
}

func (m *monitor) callbacks() dispatch.Callbacks {
	return dispatch.Callbacks{
		OnLinkScanFinished: func(found bool) {
			if !found {
				log.Println("No ANT stick found, retrying")
			}
		},
		OnInitializationFinished: m.initialized,
		OnSearchStarted: func(t sensor.Type, ch uint8) {
			log.Printf("Searching for %s on channel %d", t, ch)
		},
		OnSensorFound: m.sensorFound,
		OnSensorNotFound: func(t sensor.Type) {
			log.Printf("No %s found", t)
		},
		OnSensorValue: m.value,
		OnChannelClosed: func(ch uint8, t sensor.Type) {
			log.Printf("Channel %d (%s) closed", ch, t)
		},
	}
}

func (m *monitor) initialized(ok bool) {
	if !ok {
		// Scan failures are already reported by OnLinkScanFinished.
		if m.d.LinkPresent() {
			log.Println("Initialization failed")
		}
		return
	}
	log.Printf("Stick ready, %d channels", m.d.NumChannels())

	for _, t := range m.opts.Masters {
		if _, err := m.d.OpenMasterChannel(t); err != nil {
			log.Printf("Open %s master: %v", t, err)
		}
	}
	for _, t := range m.opts.Search {
		if _, err := m.d.SearchForSensorType(t); err != nil {
			log.Printf("Search %s: %v", t, err)
		}
	}
}

func (m *monitor) sensorFound(t sensor.Type, deviceNumber uint16) {
	log.Printf("Found %s, device %d", t, deviceNumber)
	if t == sensor.TypeSmartTrainer && m.act != nil {
		if err := m.act.SetSlope(m.opts.Slope); err != nil {
			log.Printf("Set slope: %v", err)
		}
	}
}

func (m *monitor) value(kind sensor.ValueKind, t sensor.Type, v float64) {
	fmt.Fprintf(os.Stdout, "%-18s %-14s %8.2f\n", t, kind, v)

	for _, master := range m.opts.Masters {
		if master == t || !relayed(master, kind) {
			continue
		}
		if err := m.d.SendSensorValue(kind, master, v); err != nil {
			log.Printf("Relay %s to %s: %v", kind, master, err)
		}
	}
}

// relayed reports whether a master of type t re-broadcasts values of kind.
func relayed(t sensor.Type, kind sensor.ValueKind) bool {
	switch t {
	case sensor.TypeHeartRate:
		return kind == sensor.ValueHeartRate
	case sensor.TypePower:
		return kind == sensor.ValuePower || kind == sensor.ValueCadence
	}
	return false
}
