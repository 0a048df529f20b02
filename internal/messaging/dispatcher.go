package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrDispatcherClosed is returned by Enqueue once the dispatcher stopped.
var ErrDispatcherClosed = errors.New("dispatcher is not running")

// Dispatcher delivers messages in the background so callers never wait on
// the provider. Delivery outcomes are only logged.
type Dispatcher interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(msg Message) error
}

type DispatcherConfig struct {
	MaxConcurrent int
	SendTimeout   time.Duration
	Logger        logrus.FieldLogger
}

type dispatcher struct {
	cfg    DispatcherConfig
	sender Sender

	sem     chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewDispatcher(cfg DispatcherConfig, sender Sender) Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &dispatcher{
		cfg:    cfg,
		sender: sender,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (d *dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("dispatcher already started")
	}
	// sends in flight at shutdown still get their own timeout to finish
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.running = true
	d.cfg.Logger.Infof("message dispatcher started, max concurrent sends: %d", d.cfg.MaxConcurrent)
	return nil
}

// Shutdown stops accepting messages and waits for queued sends to finish.
func (d *dispatcher) Shutdown() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.cfg.Logger.Info("message dispatcher stopped")
}

func (d *dispatcher) Enqueue(msg Message) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		d.send(msg)
	}()
	return nil
}

func (d *dispatcher) send(msg Message) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	logger := d.cfg.Logger.WithField("to", msg.To)
	start := time.Now()
	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		logger.WithError(err).Warn("message delivery failed")
		return
	}
	logger.WithFields(logrus.Fields{
		"sid":      id,
		"duration": time.Since(start).String(),
	}).Info("message delivered")
}
