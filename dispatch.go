package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"offchaind/oc"
)

// why a method stopped draining in a cycle
const (
	stopIdle     = "idle"
	stopDrained  = "drained"
	stopGap      = "gap"
	stopRetry    = "retry"
	stopStorage  = "storage"
	stopCanceled = "canceled"
	stopPanic    = "panic"
)

type DispatchOptions struct {
	// Workers bounds how many methods drain at the same time. 0 means one
	// goroutine per method.
	Workers int
	// MaxAttempts turns a retryable failure into a permanent one after this
	// many attempts on the same slot. 0 retries forever.
	MaxAttempts int
	// RetainSlots keeps this many consumed slots per method and deletes the
	// older ones. 0 keeps every slot.
	RetainSlots uint64
}

// Progress is what one cycle did for one method.
type Progress struct {
	Method     string `json:"method"`
	From       uint64 `json:"from"`
	To         uint64 `json:"to"`
	Top        uint64 `json:"top"`
	Dispatched int    `json:"dispatched"`
	Skipped    int    `json:"skipped"`
	Stop       string `json:"stop"`
}

// Dispatcher is the consumer side of the queues. Slot seq for a method is
// dispatched only after every slot below it succeeded or was given up on.
type Dispatcher struct {
	local    LocalTier
	cursors  *Cursors
	router   Router
	recorder Recorder
	metrics  *Metrics
	opts     DispatchOptions
	log      *slog.Logger

	running sync.Mutex
}

func NewDispatcher(local LocalTier, cursors *Cursors, router Router, recorder Recorder, metrics *Metrics, opts DispatchOptions, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		local:    local,
		cursors:  cursors,
		router:   router,
		recorder: recorder,
		metrics:  metrics,
		opts:     opts,
		log:      log,
	}
}

// RunCycle drains every method once. Failures are recorded, never
// returned. If a cycle is already running it returns nil immediately.
func (d *Dispatcher) RunCycle(ctx context.Context) []Progress {
	if !d.running.TryLock() {
		d.log.Warn("dispatch cycle already running")
		return nil
	}
	defer d.running.Unlock()

	start := time.Now()
	methods := d.router.Methods()
	out := make([]Progress, len(methods))
	workers := d.opts.Workers
	if workers <= 0 || workers > len(methods) {
		workers = len(methods)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, m := range methods {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, m string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = d.drainMethod(ctx, m)
		}(i, m)
	}
	wg.Wait()

	d.metrics.Cycles.Inc()
	d.metrics.CycleSeconds.Observe(time.Since(start).Seconds())
	return out
}

func (d *Dispatcher) drainMethod(ctx context.Context, method string) (p Progress) {
	p.Method = method
	defer func() {
		if r := recover(); r != nil {
			p.Stop = stopPanic
			d.metrics.Dispatched.WithLabelValues(method, outcomePanic).Inc()
			d.recorder.Record(context.WithoutCancel(ctx), newFailure(method, p.To+1, outcomePanic, 0, fmt.Errorf("panic: %v\n%s", r, debug.Stack())))
		}
	}()
	d.drain(ctx, &p)
	d.metrics.Bottom.WithLabelValues(method).Set(float64(p.To))
	if p.To > p.From {
		d.log.Debug("method drained", "method", method, "from", p.From, "to", p.To, "top", p.Top, "stop", p.Stop)
	}
	d.compact(ctx, method, p.To)
	return p
}

func (d *Dispatcher) drain(ctx context.Context, p *Progress) {
	m := p.Method
	bottom, err := d.cursors.Bottom(m)
	if err != nil {
		d.storageFailure(ctx, p, 0, err)
		return
	}
	p.From, p.To = bottom, bottom
	top, err := d.cursors.Top(m)
	if err != nil {
		d.storageFailure(ctx, p, bottom+1, err)
		return
	}
	p.Top = top
	if bottom > top {
		d.log.Warn("bottom marker above top", "method", m, "bottom", bottom, "top", top)
	}
	if bottom >= top {
		p.Stop = stopIdle
		return
	}

	for bottom < top {
		if ctx.Err() != nil {
			p.Stop = stopCanceled
			return
		}
		seq := bottom + 1
		payload, ok, err := d.local.Get(slotKey(m, seq))
		if err != nil {
			d.storageFailure(ctx, p, seq, err)
			return
		}
		if !ok {
			// not visible yet, try again next cycle
			d.metrics.Dispatched.WithLabelValues(m, outcomeGap).Inc()
			d.log.Debug("slot missing", "method", m, "seq", seq, "err", oc.ErrSlotMissing)
			p.Stop = stopGap
			return
		}
		if !d.settle(ctx, p, seq, d.handle(ctx, m, payload)) {
			return
		}
		if err := d.cursors.AdvanceBottom(m, bottom, seq); err != nil {
			d.storageFailure(ctx, p, seq, err)
			return
		}
		bottom = seq
		p.To = seq
		if err := d.clearRetry(m, seq); err != nil {
			d.log.Warn("clear retry state", "method", m, "seq", seq, "err", err)
		}
	}
	p.Stop = stopDrained
}

// handle runs the handler, turning a panic into a permanent failure so a
// poisoned slot can't stall its method forever.
func (d *Dispatcher) handle(ctx context.Context, method string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = permanent(fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return d.router.Handle(ctx, method, payload)
}

// settle classifies the handler result for slot seq and reports whether
// bottom may move past it.
func (d *Dispatcher) settle(ctx context.Context, p *Progress, seq uint64, err error) bool {
	m := p.Method
	var de *DecodeError
	switch {
	case err == nil:
		p.Dispatched++
		d.metrics.Dispatched.WithLabelValues(m, outcomeOK).Inc()
		return true
	case errors.As(err, &de):
		p.Skipped++
		d.fail(ctx, m, seq, outcomeDecode, 1, err)
		return true
	case IsRetryable(err):
		attempts, serr := d.bumpRetry(m, seq)
		if serr != nil {
			d.storageFailure(ctx, p, seq, serr)
			return false
		}
		if d.opts.MaxAttempts > 0 && attempts >= d.opts.MaxAttempts {
			p.Skipped++
			d.fail(ctx, m, seq, outcomeExhausted, attempts, err)
			return true
		}
		d.fail(ctx, m, seq, outcomeRetryable, attempts, err)
		p.Stop = stopRetry
		return false
	default:
		p.Skipped++
		d.fail(ctx, m, seq, outcomePermanent, 1, err)
		return true
	}
}

// fail records a failure. The record outlives a cancelled cycle so the last
// failures before shutdown still reach the journal.
func (d *Dispatcher) fail(ctx context.Context, method string, seq uint64, kind string, attempts int, err error) {
	d.metrics.Dispatched.WithLabelValues(method, kind).Inc()
	d.recorder.Record(context.WithoutCancel(ctx), newFailure(method, seq, kind, attempts, err))
}

func (d *Dispatcher) storageFailure(ctx context.Context, p *Progress, seq uint64, err error) {
	p.Stop = stopStorage
	d.fail(ctx, p.Method, seq, outcomeStorage, 0, err)
}

func (d *Dispatcher) retryState(method string) (oc.RetryState, bool, error) {
	var rs oc.RetryState
	data, ok, err := d.local.Get(retryKey(method))
	if err != nil || !ok {
		return rs, false, err
	}
	if _, err := rs.UnmarshalMsg(data); err != nil {
		// unreadable state only loses the attempt count
		d.log.Warn("reset retry state", "method", method, "err", err)
		return oc.RetryState{}, false, nil
	}
	return rs, true, nil
}

// RetryState returns the retry bookkeeping of the slot method is stalled on.
func (d *Dispatcher) RetryState(method string) (oc.RetryState, bool, error) {
	return d.retryState(method)
}

func (d *Dispatcher) bumpRetry(method string, seq uint64) (int, error) {
	rs, _, err := d.retryState(method)
	if err != nil {
		return 0, err
	}
	if rs.Seq != seq {
		rs = oc.RetryState{Seq: seq}
	}
	rs.Attempts++
	data, err := rs.MarshalMsg(nil)
	if err != nil {
		return 0, err
	}
	return rs.Attempts, d.local.Set(retryKey(method), data)
}

func (d *Dispatcher) clearRetry(method string, seq uint64) error {
	rs, ok, err := d.retryState(method)
	if err != nil || !ok || rs.Seq > seq {
		return err
	}
	return d.local.Delete(retryKey(method))
}

// compact deletes consumed slots older than the retention window.
func (d *Dispatcher) compact(ctx context.Context, method string, bottom uint64) {
	keep := d.opts.RetainSlots
	if keep == 0 || bottom <= keep {
		return
	}
	limit := bottom - keep
	floor, err := d.cursors.Floor(method)
	if err != nil {
		d.log.Warn("read compaction floor", "method", method, "err", err)
		return
	}
	deleted := floor
	for s := floor + 1; s <= limit && ctx.Err() == nil; s++ {
		if err := d.local.Delete(slotKey(method, s)); err != nil {
			d.log.Warn("compact slot", "method", method, "seq", s, "err", err)
			break
		}
		deleted = s
	}
	if deleted == floor {
		return
	}
	if err := d.cursors.SetFloor(method, deleted); err != nil {
		d.log.Warn("write compaction floor", "method", method, "err", err)
		return
	}
	d.metrics.Compacted.WithLabelValues(method).Add(float64(deleted - floor))
}
