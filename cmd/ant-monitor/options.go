package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/sensor"
)

// Options holds the command-line configuration.
type Options struct {
	// Ports are the serial devices to try, in order.
	Ports []string

	// BaudRate of the stick.
	BaudRate int

	// Channels is the stick's channel count.
	Channels int

	// Simulate replaces the serial stick with an in-process simulator.
	Simulate bool

	// Search lists the sensor types to search for once initialized.
	Search []sensor.Type

	// Masters lists the sensor types to broadcast as.
	Masters []sensor.Type

	// Slope is sent to a paired smart trainer.
	Slope float64

	// UserWeight and BikeWeight are sent to a paired smart trainer, in kg.
	UserWeight float64
	BikeWeight float64

	// Duration stops the monitor after this long. Zero runs until
	// interrupted.
	Duration time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultOptions returns the options used when no flag is given.
func DefaultOptions() Options {
	return Options{
		Ports:      defaultPorts(),
		BaudRate:   link.DefaultBaudRate,
		Channels:   link.DefaultChannels,
		Search:     []sensor.Type{sensor.TypeHeartRate, sensor.TypePower},
		UserWeight: 75,
		BikeWeight: 9,
	}
}

func defaultPorts() []string {
	if os.PathSeparator == '\\' {
		return []string{"COM3", "COM4", "COM5"}
	}
	return []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
}

// ParseFlags parses the command line:
//
//	-port        Comma-separated serial ports to try
//	-baud        Baud rate (default: 57600)
//	-channels    Channel count of the stick (default: 8)
//	-simulate    Use the built-in stick simulator
//	-search      Comma-separated sensor types to search for (default: hr,power)
//	-master      Comma-separated sensor types to broadcast as
//	-slope       Slope in percent for a paired trainer
//	-weight      Rider weight in kg (default: 75)
//	-bike-weight Bike weight in kg (default: 9)
//	-duration    Stop after this long (default: run until interrupted)
//	-v           Debug logging
func ParseFlags() Options {
	o := DefaultOptions()

	flag.Func("port", fmt.Sprintf("Comma-separated serial ports (default: %s)", strings.Join(o.Ports, ",")), func(s string) error {
		o.Ports = splitList(s)
		if len(o.Ports) == 0 {
			return fmt.Errorf("no port given")
		}
		return nil
	})
	flag.IntVar(&o.BaudRate, "baud", o.BaudRate, "Baud rate")
	flag.IntVar(&o.Channels, "channels", o.Channels, "Channel count of the stick")
	flag.BoolVar(&o.Simulate, "simulate", false, "Use the built-in stick simulator")
	flag.Func("search", "Comma-separated sensor types to search for (default: hr,power)", func(s string) error {
		types, err := parseTypes(s)
		if err != nil {
			return err
		}
		o.Search = types
		return nil
	})
	flag.Func("master", "Comma-separated sensor types to broadcast as (hr, power, fec)", func(s string) error {
		types, err := parseTypes(s)
		if err != nil {
			return err
		}
		o.Masters = types
		return nil
	})
	flag.Float64Var(&o.Slope, "slope", 0, "Slope in percent for a paired trainer")
	flag.Float64Var(&o.UserWeight, "weight", o.UserWeight, "Rider weight in kg")
	flag.Float64Var(&o.BikeWeight, "bike-weight", o.BikeWeight, "Bike weight in kg")
	flag.DurationVar(&o.Duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	flag.BoolVar(&o.Verbose, "v", false, "Debug logging")

	flag.Parse()
	return o
}

func parseTypes(s string) ([]sensor.Type, error) {
	var types []sensor.Type
	for _, name := range splitList(s) {
		t, err := sensor.ParseType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
