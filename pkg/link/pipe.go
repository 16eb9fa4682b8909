package link

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// LineCondition configures how a Pipe mangles bytes in flight.
// Use it to exercise reassembly and resynchronization.
type LineCondition struct {
	// ChunkSize splits every write into transfers of at most this many
	// bytes. Zero delivers each write whole.
	ChunkSize int

	// CorruptRate is the probability (0.0 - 1.0) that a write has one
	// random byte flipped.
	CorruptRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe is an in-memory serial line between a host (endpoint 0) and a
// radio (endpoint 1). It wraps pion's test.Bridge.
//
// By default, Pipe delivers transfers in a background goroutine. Use
// SetAutoProcess(false) and Tick/Process for step-by-step control.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       LineCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				// Drain everything queued so far; one transfer per tick
				// would throttle chunked writes.
				for p.bridge.Tick() > 0 {
				}
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic delivery.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}

	p.autoProcess = enabled
	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// AutoProcess reports whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures line mangling for both directions.
func (p *Pipe) SetCondition(cond LineCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current line condition.
func (p *Pipe) Condition() LineCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Conn returns endpoint id (0 or 1) as a net.Conn that applies the line
// condition to its writes.
func (p *Pipe) Conn(id int) net.Conn {
	if id == 0 {
		return &pipeConn{Conn: p.bridge.GetConn0(), pipe: p}
	}
	return &pipeConn{Conn: p.bridge.GetConn1(), pipe: p}
}

// Link wraps endpoint id in a StreamLink.
func (p *Pipe) Link(id int, config StreamConfig) *StreamLink {
	if config.Name == "" {
		config.Name = "pipe"
		if id == 1 {
			config.Name = "pipe-radio"
		}
	}
	return NewStreamLink(p.Conn(id), config)
}

// Tick delivers one transfer in each direction, if a reader is waiting.
// Returns the number of transfers delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers transfers until none are deliverable.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close stops auto-processing. Endpoints are closed by their links.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// pipeConn applies the pipe's line condition on write.
type pipeConn struct {
	net.Conn
	pipe *Pipe
}

func (c *pipeConn) Write(b []byte) (int, error) {
	c.pipe.mu.Lock()
	cond := c.pipe.condition
	data := b
	if cond.CorruptRate > 0 && len(b) > 0 && c.pipe.rng.Float64() < cond.CorruptRate {
		data = make([]byte, len(b))
		copy(data, b)
		data[c.pipe.rng.Intn(len(data))] ^= byte(1 + c.pipe.rng.Intn(255))
	}
	c.pipe.mu.Unlock()

	if cond.ChunkSize <= 0 {
		if _, err := c.Conn.Write(data); err != nil {
			return 0, err
		}
		return len(b), nil
	}

	for off := 0; off < len(data); off += cond.ChunkSize {
		end := min(off+cond.ChunkSize, len(data))
		if _, err := c.Conn.Write(data[off:end]); err != nil {
			return off, err
		}
	}
	return len(b), nil
}
