package service

import (
	"context"
	"fmt"
	"time"

	"github.com/higpup01-design/proofok/config"
	"github.com/higpup01-design/proofok/pkg/logger"
	"github.com/panjf2000/ants/v2"
)

// Delivery modes
const (
	ModeOff   = "off"
	ModeSync  = "sync"
	ModeAsync = "async"
)

// notifyWorkers bounds concurrent background sends; decisions are rare and sends short
const notifyWorkers = 2

type NotifierOptions struct {
	Mode    string
	Timeout time.Duration
	Relay   string // host:port, only used in warning text
}

// NotifierOptionsFromConfig derives notifier options from the mail settings
func NotifierOptionsFromConfig(cfg *config.MailConfig) NotifierOptions {
	return NotifierOptions{
		Mode:    cfg.Mode,
		Timeout: cfg.MailTimeout(),
		Relay:   cfg.Addr(),
	}
}

// Notifier sends decision emails according to the configured delivery mode.
// It never returns an error: problems come back as advisory warning text.
type Notifier struct {
	sender  Sender
	mode    string
	timeout time.Duration
	relay   string
	pool    *ants.Pool
}

func NewNotifier(sender Sender, opts NotifierOptions) (*Notifier, error) {
	n := &Notifier{
		sender:  sender,
		mode:    opts.Mode,
		timeout: opts.Timeout,
		relay:   opts.Relay,
	}

	switch n.mode {
	case ModeOff, ModeSync:
	default:
		n.mode = ModeAsync
		pool, err := ants.NewPool(notifyWorkers)
		if err != nil {
			return nil, fmt.Errorf("create notify pool: %w", err)
		}
		n.pool = pool
	}

	return n, nil
}

// Mode returns the effective delivery mode
func (n *Notifier) Mode() string {
	return n.mode
}

// Notify delivers msg and returns a warning for the caller, or "" when the
// message was sent or deliberately skipped.
func (n *Notifier) Notify(ctx context.Context, msg Message) string {
	switch n.mode {
	case ModeOff:
		logger.Warn(ctx, "email mode off, skipping notification")
		return ""
	case ModeSync:
		if err := n.sender.Send(context.WithoutCancel(ctx), msg); err != nil {
			logger.Error(ctx, "email send failed", "mode", n.mode, "relay", n.relay, "error", err)
			return n.failureWarning(err)
		}
		logger.Info(ctx, "email sent", "mode", n.mode)
		return ""
	}
	return n.notifyAsync(ctx, msg)
}

// notifyAsync hands the send to the pool and waits at most timeout for it.
// On timeout the send keeps running detached from the request.
func (n *Notifier) notifyAsync(ctx context.Context, msg Message) string {
	sendCtx := context.WithoutCancel(ctx)
	done := make(chan error, 1)

	task := func() {
		err := n.sender.Send(sendCtx, msg)
		if err != nil {
			logger.Error(sendCtx, "email send failed", "mode", n.mode, "relay", n.relay, "error", err)
		} else {
			logger.Info(sendCtx, "email sent", "mode", n.mode)
		}
		done <- err
	}

	// Submit blocks while both workers are busy; queueing counts against the wait
	go func() {
		if err := n.pool.Submit(task); err != nil {
			done <- err
		}
	}()

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return n.failureWarning(err)
		}
		return ""
	case <-timer.C:
		logger.Warn(ctx, "email send timed out, continuing in background", "timeout", n.timeout)
		return fmt.Sprintf("Email is sending in background (timeout %s).", n.timeout)
	}
}

func (n *Notifier) failureWarning(err error) string {
	return fmt.Sprintf("Email send failed (%s): %v", n.relay, err)
}

// Close releases the worker pool. Sends already running are not interrupted.
func (n *Notifier) Close() {
	if n.pool != nil {
		n.pool.Release()
	}
}
