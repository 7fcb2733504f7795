// internal/protocol/serial/link.go
package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// ErrStreamClosed is reported when the device stops delivering data
var ErrStreamClosed = errors.New("device closed the serial stream")

const readChunkSize = 256

// LinkStats provides link-level statistics
type LinkStats struct {
	BytesRead     int64     `json:"bytes_read"`
	FramesRead    int64     `json:"frames_read"`
	FramesDropped int64     `json:"frames_dropped"`
	OversizeLines int64     `json:"oversize_lines"`
	OpenedAt      time.Time `json:"opened_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Link is an open serial session with one device. Frames are delivered on
// Frames() in arrival order; the channel is closed when the read loop ends,
// after which Err reports the cause (nil when the link was closed locally).
type Link struct {
	device   model.DeviceIdentity
	portName string
	config   model.LinkConfig
	port     serial.Port
	logger   *zap.Logger

	frames       chan model.RawFrame
	maxFrameSize int
	readTimeout  time.Duration

	closing   atomic.Bool
	closeOnce sync.Once
	onClose   func()

	mu    sync.Mutex
	err   error
	stats LinkStats
}

func newLink(device model.DeviceIdentity, portName string, cfg model.LinkConfig, port serial.Port, opts Options, logger *zap.Logger) *Link {
	return &Link{
		device:       device,
		portName:     portName,
		config:       cfg,
		port:         port,
		logger:       logger,
		frames:       make(chan model.RawFrame, opts.FrameBuffer),
		maxFrameSize: opts.MaxFrameSize,
		readTimeout:  opts.ReadTimeout,
		stats:        LinkStats{OpenedAt: time.Now()},
	}
}

// Device returns the device this link was opened for
func (l *Link) Device() model.DeviceIdentity {
	return l.device
}

// PortName returns the OS port the link is bound to
func (l *Link) PortName() string {
	return l.portName
}

// Config returns the framing the port was opened with
func (l *Link) Config() model.LinkConfig {
	return l.config
}

// Frames returns the inbound frame channel
func (l *Link) Frames() <-chan model.RawFrame {
	return l.frames
}

// Err returns the read failure that ended the link, if any
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns a snapshot of link statistics
func (l *Link) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close releases the port. Only the first call has any effect.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		err = l.port.Close()
		if l.onClose != nil {
			l.onClose()
		}
		l.logger.Info("Serial link closed", zap.String("port", l.portName), zap.Error(err))
	})
	return err
}

// readLoop splits the byte stream into newline-terminated frames
func (l *Link) readLoop() {
	defer close(l.frames)

	buf := make([]byte, readChunkSize)
	var pending []byte
	discarding := false
	var seq uint64

	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.recordRead(n)
			pending = append(pending, buf[:n]...)

			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				pending = pending[i+1:]
				if discarding {
					discarding = false
					continue
				}
				if len(line) > l.maxFrameSize {
					l.recordOversize(len(line))
					continue
				}
				if frame, ok := l.makeFrame(line, seq+1); ok {
					seq++
					l.publish(frame)
				}
			}

			if len(pending) > l.maxFrameSize {
				l.recordOversize(len(pending))
				pending = nil
				discarding = true
			} else if len(pending) == 0 {
				pending = nil
			}
		}

		if err != nil {
			l.fail(err)
			return
		}
		if n == 0 && l.readTimeout <= 0 {
			// A blocking read that returns nothing means the device went away
			l.fail(io.EOF)
			return
		}
	}
}

func (l *Link) makeFrame(line []byte, seq uint64) (model.RawFrame, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return model.RawFrame{}, false
	}
	data := make([]byte, len(line))
	copy(data, line)
	return model.RawFrame{Data: data, Seq: seq, ReceivedAt: time.Now()}, true
}

// publish never blocks the read loop; frames beyond the buffer are dropped
func (l *Link) publish(frame model.RawFrame) {
	if l.closing.Load() {
		return
	}
	select {
	case l.frames <- frame:
		l.mu.Lock()
		l.stats.FramesRead++
		l.mu.Unlock()
	default:
		l.mu.Lock()
		l.stats.FramesDropped++
		l.mu.Unlock()
		l.logger.Warn("Frame buffer full, dropping frame", zap.Uint64("seq", frame.Seq))
	}
}

func (l *Link) fail(err error) {
	if l.closing.Load() {
		return
	}
	if errors.Is(err, io.EOF) {
		err = ErrStreamClosed
	}
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.logger.Warn("Serial read failed", zap.String("port", l.portName), zap.Error(err))
}

func (l *Link) recordRead(n int) {
	l.mu.Lock()
	l.stats.BytesRead += int64(n)
	l.stats.LastActivity = time.Now()
	l.mu.Unlock()
}

func (l *Link) recordOversize(size int) {
	l.mu.Lock()
	l.stats.OversizeLines++
	l.mu.Unlock()
	l.logger.Warn("Discarding oversize frame",
		zap.Int("size", size),
		zap.Int("max_frame_size", l.maxFrameSize),
	)
}
