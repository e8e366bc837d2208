package funrun

import (
	"sort"

	"github.com/dop251/goja"
)

// pendingTimer is one outstanding setTimeout/setInterval registration.
// Delay is a virtual deadline, not wall-clock time: the environment's
// clock is frozen for determinism, so timers are ordered by (delay, seq)
// and drained cooperatively once the script body returns control, never
// by an actual Go timer goroutine.
type pendingTimer struct {
	id       int64
	fn       goja.Callable
	args     []goja.Value
	delay    float64
	seq      int64
	interval bool
	canceled bool
}

// timerQueue is the cooperative setTimeout/setInterval scheduler
// installed into every VM (§4.13 "cooperative setTimeout/setInterval").
type timerQueue struct {
	nextID  int64
	nextSeq int64
	pending []*pendingTimer
}

func newTimerQueue() *timerQueue {
	return &timerQueue{}
}

func (q *timerQueue) schedule(fn goja.Callable, delay float64, interval bool, args []goja.Value) int64 {
	q.nextID++
	q.nextSeq++
	q.pending = append(q.pending, &pendingTimer{
		id:       q.nextID,
		fn:       fn,
		args:     args,
		delay:    delay,
		seq:      q.nextSeq,
		interval: interval,
	})
	return q.nextID
}

func (q *timerQueue) cancel(id int64) {
	for _, t := range q.pending {
		if t.id == id {
			t.canceled = true
		}
	}
}

// drain runs every live timer in (delay, seq) order, up to maxTicks total
// callback invocations, so a runaway setInterval cannot loop forever.
// Intervals reschedule themselves with a fresh seq, placing them behind
// any timers registered during their own callback (FIFO on equal delay).
// onFire, if non-nil, is called immediately before each timer runs so the
// caller can journal the firing order (§4.13 non-deterministic boundary).
func (q *timerQueue) drain(maxTicks int, onFire func(timerID int64)) error {
	ticks := 0
	for {
		live := q.pending[:0:0]
		for _, t := range q.pending {
			if !t.canceled {
				live = append(live, t)
			}
		}
		q.pending = live
		if len(q.pending) == 0 {
			return nil
		}
		sort.SliceStable(q.pending, func(i, j int) bool {
			if q.pending[i].delay != q.pending[j].delay {
				return q.pending[i].delay < q.pending[j].delay
			}
			return q.pending[i].seq < q.pending[j].seq
		})
		t := q.pending[0]
		q.pending = q.pending[1:]
		if t.canceled {
			continue
		}
		ticks++
		if ticks > maxTicks {
			return nil
		}
		if onFire != nil {
			onFire(t.id)
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			return err
		}
		if t.interval && !t.canceled {
			q.nextSeq++
			t.seq = q.nextSeq
			q.pending = append(q.pending, t)
		}
	}
}
