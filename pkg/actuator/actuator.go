// Package actuator drives a smart trainer from ride data.
//
// The Actuator keeps the trainer's rider configuration and resistance in step
// with the ride: it sends the rider and bike weight whenever a trainer pairs,
// and forwards slope changes clamped to the configured limits.
package actuator

import (
	"errors"
	"math"
	"sync"

	"github.com/backkem/antplus/pkg/dispatch"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/pion/logging"
)

// Defaults applied by Config.
const (
	DefaultUserWeight  = 75.0 // kg
	DefaultBikeWeight  = 9.0  // kg
	DefaultMaxUphill   = 20.0 // percent
	DefaultMaxDownhill = 10.0 // percent
)

// slopeTolerance is the smallest slope change worth sending.
const slopeTolerance = 1e-9

// ErrNoTrainer is returned by New when Config.Trainer is nil.
var ErrNoTrainer = errors.New("actuator: no trainer configured")

// Trainer is the dispatcher surface the actuator needs. *dispatch.Dispatcher
// implements it.
type Trainer interface {
	Subscribe(cb dispatch.Callbacks) (unsubscribe func())
	SetSlope(percent float64) error
	SetWeight(userKg, bikeKg float64) error
}

// Config configures an Actuator.
type Config struct {
	// Trainer carries the control pages. Required.
	Trainer Trainer

	// UserWeight is the rider weight in kg.
	// Default: DefaultUserWeight
	UserWeight float64

	// BikeWeight is the bike weight in kg.
	// Default: DefaultBikeWeight
	BikeWeight float64

	// MaxUphill caps the slope sent to the trainer, in percent.
	// Default: DefaultMaxUphill
	MaxUphill float64

	// MaxDownhill caps the descent sent to the trainer, as a positive
	// percentage.
	// Default: DefaultMaxDownhill
	MaxDownhill float64

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.UserWeight == 0 {
		c.UserWeight = DefaultUserWeight
	}
	if c.BikeWeight == 0 {
		c.BikeWeight = DefaultBikeWeight
	}
	if c.MaxUphill == 0 {
		c.MaxUphill = DefaultMaxUphill
	}
	if c.MaxDownhill == 0 {
		c.MaxDownhill = DefaultMaxDownhill
	}
}

// Actuator forwards ride state to a smart trainer.
type Actuator struct {
	config      Config
	log         logging.LeveledLogger
	unsubscribe func()

	mu        sync.Mutex
	slope     float64
	slopeSent bool
}

// New creates an Actuator and subscribes it to sensor discovery.
func New(config Config) (*Actuator, error) {
	if config.Trainer == nil {
		return nil, ErrNoTrainer
	}
	config.applyDefaults()

	a := &Actuator{config: config}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("ant-actuator")
	}
	a.unsubscribe = config.Trainer.Subscribe(dispatch.Callbacks{
		OnSensorFound: a.sensorFound,
	})
	return a, nil
}

func (a *Actuator) sensorFound(t sensor.Type, deviceNumber uint16) {
	if t != sensor.TypeSmartTrainer {
		return
	}
	if a.log != nil {
		a.log.Infof("trainer %d paired, sending %.1f kg rider, %.1f kg bike",
			deviceNumber, a.config.UserWeight, a.config.BikeWeight)
	}
	if err := a.ConfigureWeight(); err != nil && a.log != nil {
		a.log.Warnf("configure weight: %v", err)
	}
}

// ConfigureWeight sends the configured weights to the trainer.
func (a *Actuator) ConfigureWeight() error {
	return a.config.Trainer.SetWeight(a.config.UserWeight, a.config.BikeWeight)
}

// SetSlope clamps percent to [-MaxDownhill, MaxUphill] and sends it if it
// differs from the last slope sent.
func (a *Actuator) SetSlope(percent float64) error {
	capped := math.Max(-a.config.MaxDownhill, math.Min(percent, a.config.MaxUphill))

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slopeSent && math.Abs(capped-a.slope) < slopeTolerance {
		return nil
	}
	if err := a.config.Trainer.SetSlope(capped); err != nil {
		return err
	}
	a.slope = capped
	a.slopeSent = true
	return nil
}

// Slope returns the last slope sent and whether one was sent.
func (a *Actuator) Slope() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slope, a.slopeSent
}

// Close stops listening for trainers.
func (a *Actuator) Close() {
	a.unsubscribe()
}
