package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"

	"go.uber.org/zap"
)

// Journal is a store listener that writes changes to a Storage.
//
// Changed only records the change, since the store calls it while
// holding its serialization point.  Run does the writing.  Changes to
// the same coordinate between two flushes collapse into the last
// one.
type Journal struct {
	s        Storage
	logger   *zap.Logger
	interval time.Duration

	sync.Mutex
	pending map[core.Ref]Change
	signal  chan struct{}
	written uint64
}

// NewJournal makes a Journal.  Run waits interval after a change
// before flushing in order to batch writes.
func NewJournal(s Storage, logger *zap.Logger, interval time.Duration) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		s:        s,
		logger:   logger,
		interval: interval,
		pending:  make(map[core.Ref]Change, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Changed implements tuples.Listener.
func (j *Journal) Changed(ev core.Event) {
	if ev.Tuple == nil || ev.Kind == core.EventOverflow {
		return
	}
	c := Change{
		Ref: ev.Tuple.Ref(),
		Seq: ev.Seq,
	}
	if ev.Kind != core.EventDelete {
		c.Tuple = ev.Tuple.Copy()
	}

	j.Lock()
	j.pending[c.Ref] = c
	j.Unlock()

	select {
	case j.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of coordinates waiting to be written.
func (j *Journal) Pending() int {
	j.Lock()
	defer j.Unlock()
	return len(j.pending)
}

// Written returns the number of changes written so far.
func (j *Journal) Written() uint64 {
	j.Lock()
	defer j.Unlock()
	return j.written
}

// Flush writes all pending changes.  If the write fails, the changes
// stay pending unless newer ones arrived in the meantime.
func (j *Journal) Flush(ctx context.Context) error {
	j.Lock()
	if len(j.pending) == 0 {
		j.Unlock()
		return nil
	}
	cs := make([]Change, 0, len(j.pending))
	for _, c := range j.pending {
		cs = append(cs, c)
	}
	j.pending = make(map[core.Ref]Change, 64)
	j.Unlock()

	sort.Slice(cs, func(i, k int) bool {
		return cs[i].Seq < cs[k].Seq
	})

	if err := j.s.Write(ctx, cs); err != nil {
		j.Lock()
		for _, c := range cs {
			if _, have := j.pending[c.Ref]; !have {
				j.pending[c.Ref] = c
			}
		}
		j.Unlock()
		return err
	}

	j.Lock()
	j.written += uint64(len(cs))
	j.Unlock()

	j.logger.Debug("flushed", zap.Int("changes", len(cs)), zap.Uint64("seq", cs[len(cs)-1].Seq))
	return nil
}

// Run flushes pending changes until the context is done.  The final
// flush happens after the context is done, so it doesn't use that
// context.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return j.Flush(context.Background())
		case <-j.signal:
		}

		if 0 < j.interval {
			select {
			case <-ctx.Done():
			case <-time.After(j.interval):
			}
		}

		if err := j.Flush(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("flush failed", zap.Error(err), zap.Int("pending", j.Pending()))
		}
	}
}

// Restorer can load tuples without treating them as new writes.
// tuples.Store is one.
type Restorer interface {
	Restore(ts []*core.Tuple) error
}

// Restore loads everything in the Storage into the store.
func Restore(ctx context.Context, s Storage, r Restorer) (int, error) {
	ts, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err = r.Restore(ts); err != nil {
		return 0, err
	}
	return len(ts), nil
}
