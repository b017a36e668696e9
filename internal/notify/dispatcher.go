package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the dispatcher cannot take another message.
var ErrQueueFull = errors.New("notify: queue full")

// ErrStopped is returned for messages offered after Stop.
var ErrStopped = errors.New("notify: dispatcher stopped")

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration // per message
}

// DefaultDispatcherConfig is used for any zero field.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 2, QueueSize: 256, Timeout: 15 * time.Second}
}

// Dispatcher delivers messages asynchronously through next. Delivery is
// fire-and-forget: failures are logged, never reported to the caller.
type Dispatcher struct {
	next   Notifier
	config DispatcherConfig
	logger *slog.Logger

	queue chan Message
	mu    sync.RWMutex
	done  bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(next Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Dispatcher{
		next:   next,
		config: cfg,
		logger: logger,
		queue:  make(chan Message, cfg.QueueSize),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.logger.Info("starting notification dispatcher",
			slog.Int("workers", d.config.Workers),
			slog.Int("queueSize", d.config.QueueSize),
		)
		for i := 0; i < d.config.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

// Stop refuses new messages, lets the workers drain what is queued and
// waits for them to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("shutting down notification dispatcher", slog.Int("pending", len(d.queue)))
		d.mu.Lock()
		d.done = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Notify queues msg without blocking. It returns ErrQueueFull when the
// buffer is full and ErrStopped after Stop.
func (d *Dispatcher) Notify(_ context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.done {
		return ErrStopped
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.Warn("notification dropped, queue full",
			slog.String("channel", string(msg.Channel)),
			slog.String("to", msg.To),
		)
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
		err := d.next.Notify(ctx, msg)
		cancel()

		if err != nil {
			d.logger.Error("notification failed",
				slog.String("channel", string(msg.Channel)),
				slog.String("to", msg.To),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.logger.Debug("notification sent",
			slog.String("channel", string(msg.Channel)),
			slog.String("to", msg.To),
		)
	}
}
