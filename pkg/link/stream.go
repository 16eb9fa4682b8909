package link

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultReadBufferSize is larger than any single USB transfer from an ANT
// stick.
const DefaultReadBufferSize = 1024

// StreamConfig configures a StreamLink.
type StreamConfig struct {
	// Name identifies the link in logs.
	Name string

	// Channels is the radio's channel count.
	// Default: DefaultChannels
	Channels int

	// ReadBufferSize is the size of each read.
	// Default: DefaultReadBufferSize
	ReadBufferSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// StreamLink runs a Link over an io.ReadWriteCloser.
type StreamLink struct {
	rwc      io.ReadWriteCloser
	name     string
	channels int
	bufSize  int
	log      logging.LeveledLogger

	handler Handler
	closeCh chan struct{}
	wg      sync.WaitGroup

	writeMu sync.Mutex

	mu      sync.RWMutex
	started bool
	closed  bool
	failed  bool
}

// readDeadliner is implemented by connections whose blocking Read can be
// interrupted with a deadline.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// NewStreamLink wraps rwc. The link owns rwc and closes it on Close.
func NewStreamLink(rwc io.ReadWriteCloser, config StreamConfig) *StreamLink {
	if config.Channels <= 0 {
		config.Channels = DefaultChannels
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}
	if config.Name == "" {
		config.Name = "stream"
	}

	l := &StreamLink{
		rwc:      rwc,
		name:     config.Name,
		channels: config.Channels,
		bufSize:  config.ReadBufferSize,
		closeCh:  make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("ant-link")
	}
	return l
}

// Start begins the read loop.
func (l *StreamLink) Start(h Handler) error {
	if h == nil {
		return ErrNoHandler
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.handler = h
	l.mu.Unlock()

	if l.log != nil {
		l.log.Infof("%s: started (%d channels)", l.name, l.channels)
	}

	l.wg.Add(1)
	go l.readLoop()
	return nil
}

// IsReady reports whether the link is started and open.
func (l *StreamLink) IsReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started && !l.closed && !l.failed
}

// Write sends p as one write.
func (l *StreamLink) Write(p []byte) (int, error) {
	l.mu.RLock()
	closed, started := l.closed || l.failed, l.started
	l.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}
	if !started {
		return 0, ErrNotStarted
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.log != nil {
		l.log.Tracef("%s: tx % X", l.name, p)
	}
	return l.rwc.Write(p)
}

// NumChannels returns the configured channel count.
func (l *StreamLink) NumChannels() int {
	return l.channels
}

// String returns the link name.
func (l *StreamLink) String() string {
	return l.name
}

// Close stops the read loop and closes the underlying stream.
func (l *StreamLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.log != nil {
		l.log.Infof("%s: closing", l.name)
	}

	close(l.closeCh)
	if d, ok := l.rwc.(readDeadliner); ok {
		d.SetReadDeadline(time.Now())
	}
	err := l.rwc.Close()
	l.wg.Wait()
	return err
}

func (l *StreamLink) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, l.bufSize)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.handler(chunk)
		}

		select {
		case <-l.closeCh:
			return
		default:
		}

		if err != nil {
			if l.log != nil && !errors.Is(err, io.EOF) {
				l.log.Errorf("%s: read failed: %v", l.name, err)
			}
			l.mu.Lock()
			l.failed = true
			l.mu.Unlock()
			return
		}
	}
}

// Verify StreamLink implements Link.
var _ Link = (*StreamLink)(nil)
