package party

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pergyra-lang/core/errs"
	"github.com/pergyra-lang/core/fiber"
)

// JoinStrategy selects how DispatchParallel decides the party's collective
// outcome, per spec §4.6.
type JoinStrategy int

const (
	JoinAll JoinStrategy = iota
	JoinAny
	JoinRace
	JoinMajority
	JoinCustom
)

// CustomPredicate is evaluated against the results gathered so far each
// time a fiber completes, for JoinCustom. It returns true once the caller
// considers the dispatch settled.
type CustomPredicate func(results []FiberResult) bool

// FiberResult is one role's outcome from a DispatchParallel call.
type FiberResult struct {
	RoleId      string
	Value       interface{}
	Err         error
	Success     bool
	DurationNs  int64
	// Pending is true if this entry's fiber had not completed when
	// DispatchParallel returned (JoinRace/JoinMajority/JoinAny/JoinCustom
	// may settle before every fiber finishes, per spec §4.6 "excess fibers
	// are left to finish").
	Pending bool
}

// DispatchResult is the outcome of one DispatchParallel call, per spec
// §4.6 and §8 scenario 3.
type DispatchResult struct {
	AllSucceeded         bool
	Results              []FiberResult
	TotalExecutionTimeNs int64
}

// DispatcherConfig holds optional limits and callbacks for a Dispatcher.
// Only OnFiberError is consulted during dispatch; PerSchedulerConcurrency,
// MemoryPerFiberBytes, Timeout and OnTimeout are stored but have no effect
// on how fibers are scheduled, limited or timed out.
type DispatcherConfig struct {
	PerSchedulerConcurrency map[SchedulerTag]int
	MemoryPerFiberBytes     int64
	Timeout                 time.Duration
	OnFiberError            func(roleId string, err error)
	OnTimeout               func(roleId string)
}

// Dispatcher orchestrates a FiberMap's entries across a SchedulerRegistry
// and joins them per a JoinStrategy, per spec §4.6.
type Dispatcher struct {
	registry *SchedulerRegistry
	cfg      DispatcherConfig

	statsMu sync.Mutex
	stats   map[string]*FiberStats
}

// NewDispatcher creates a Dispatcher bound to registry.
func NewDispatcher(registry *SchedulerRegistry, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		stats:    make(map[string]*FiberStats),
	}
}

// Stats returns a snapshot of the accumulated per-role statistics for
// roleId, or the zero Snapshot if no fiber for that role has completed.
func (d *Dispatcher) Stats(roleId string) Snapshot {
	d.statsMu.Lock()
	s, ok := d.stats[roleId]
	d.statsMu.Unlock()
	if !ok {
		return Snapshot{}
	}
	return s.Snapshot()
}

// AllStats returns a snapshot of every role's accumulated statistics,
// keyed by role id. Used by the prometheus.Collector in metrics.go.
func (d *Dispatcher) AllStats() map[string]Snapshot {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make(map[string]Snapshot, len(d.stats))
	for roleId, s := range d.stats {
		out[roleId] = s.Snapshot()
	}
	return out
}

func (d *Dispatcher) recordStat(roleId string, durationNs int64, success bool) {
	d.statsMu.Lock()
	s, ok := d.stats[roleId]
	if !ok {
		s = &FiberStats{}
		d.stats[roleId] = s
	}
	d.statsMu.Unlock()
	s.record(durationNs, success)
}

// resolveInstance finds the role instance bound to instanceSlotId. The
// spec's "resolve the role instance pointer from instanceSlotId via Slot
// Manager" is realized here as a lookup over the PartyContext's own role
// table (filled by callers through AddRole; the Slot Manager is not consulted),
// since the role instance itself — not a raw byte buffer — is what a
// parallelFn needs in hand.
func resolveInstance(pctx *PartyContext, instanceSlotId uint32) (interface{}, bool) {
	pctx.mu.RLock()
	defer pctx.mu.RUnlock()
	for _, r := range pctx.roles {
		if r.SlotId == instanceSlotId {
			return r.Instance, true
		}
	}
	return nil, false
}

type dispatchItem struct {
	idx      int
	entry    FiberMapEntry
	f        *fiber.Fiber
	start    time.Time
	stopFlag *int32
	// periodic is true for any entry run through periodicWrapper (either
	// IsContinuous or IntervalMs > 0) — these loop until their stop flag is
	// set rather than completing on their own, so they are excluded from
	// the join wait and drained afterward, per spec §4.6.
	periodic bool
}

func (d *Dispatcher) oneShotWrapper(entry FiberMapEntry) fiber.Func {
	return func(ctx *fiber.Context) (interface{}, error) {
		start := time.Now()
		val, err := entry.ParallelFn(ctx)
		duration := time.Since(start).Nanoseconds()
		success := err == nil && !ctx.Cancelled()
		d.recordStat(entry.RoleId, duration, success)
		if err != nil && d.cfg.OnFiberError != nil {
			d.cfg.OnFiberError(entry.RoleId, err)
		}
		return val, err
	}
}

func (d *Dispatcher) periodicWrapper(entry FiberMapEntry, stopFlag *int32) fiber.Func {
	return func(ctx *fiber.Context) (interface{}, error) {
		var lastVal interface{}
		for atomic.LoadInt32(stopFlag) == 0 && !ctx.Cancelled() {
			start := time.Now()
			val, err := entry.ParallelFn(ctx)
			duration := time.Since(start).Nanoseconds()
			lastVal = val
			d.recordStat(entry.RoleId, duration, err == nil)
			if err != nil && d.cfg.OnFiberError != nil {
				d.cfg.OnFiberError(entry.RoleId, err)
			}
			if atomic.LoadInt32(stopFlag) != 0 || ctx.Cancelled() {
				break
			}
			if entry.IsContinuous && entry.IntervalMs <= 0 {
				ctx.Yield()
			} else {
				time.Sleep(time.Duration(entry.IntervalMs) * time.Millisecond)
			}
		}
		return lastVal, nil
	}
}

// DispatchParallel resolves every entry's role instance, schedules its
// wrapped fiber, and joins the results under strategy, per spec §4.6.
// custom is only consulted when strategy is JoinCustom.
func (d *Dispatcher) DispatchParallel(fm *FiberMap, pctx *PartyContext, strategy JoinStrategy, custom CustomPredicate) (*DispatchResult, error) {
	started := time.Now()
	scope := fiber.NewScope(nil, nil, nil)

	items := make([]*dispatchItem, 0, len(fm.Entries))
	results := make([]FiberResult, len(fm.Entries))
	for i := range results {
		results[i].Pending = true
	}

	for idx, entry := range fm.Entries {
		entry := entry
		idx := idx
		results[idx].RoleId = entry.RoleId

		if entry.ParallelFn == nil {
			results[idx].Pending = false
			results[idx].Err = errs.New(errs.RoleInstanceMissing, "party.DispatchParallel", nil)
			continue
		}
		if _, ok := resolveInstance(pctx, entry.InstanceSlotId); !ok {
			results[idx].Pending = false
			results[idx].Err = errs.New(errs.RoleInstanceMissing, "party.DispatchParallel", nil)
			continue
		}

		sched := d.registry.Resolve(entry.SchedulerTag)
		item := &dispatchItem{idx: idx, entry: entry, start: time.Now()}

		var fn fiber.Func
		if entry.IsContinuous || entry.IntervalMs > 0 {
			item.periodic = true
			stopFlag := new(int32)
			item.stopFlag = stopFlag
			fn = d.periodicWrapper(entry, stopFlag)
		} else {
			fn = d.oneShotWrapper(entry)
		}
		item.f = scope.SpawnOn(sched, fn, entry.Priority)
		items = append(items, item)
	}

	oneShot := make([]*dispatchItem, 0, len(items))
	continuous := make([]*dispatchItem, 0, len(items))
	for _, it := range items {
		if it.periodic {
			continuous = append(continuous, it)
		} else {
			oneShot = append(oneShot, it)
		}
	}

	completions := make(chan *dispatchItem, len(oneShot))
	for _, it := range oneShot {
		it := it
		go func() {
			<-it.f.Done()
			completions <- it
		}()
	}

	collect := func(it *dispatchItem) {
		val, err := it.f.Result()
		results[it.idx] = FiberResult{
			RoleId:     it.entry.RoleId,
			Value:      val,
			Err:        err,
			Success:    err == nil,
			DurationNs: time.Since(it.start).Nanoseconds(),
			Pending:    false,
		}
	}

	switch strategy {
	case JoinAll:
		for range oneShot {
			collect(<-completions)
		}
	case JoinAny:
		if len(oneShot) > 0 {
			collect(<-completions)
		}
	case JoinRace:
	raceLoop:
		for range oneShot {
			it := <-completions
			collect(it)
			if results[it.idx].Success {
				scope.Cancel()
				break raceLoop
			}
		}
	case JoinMajority:
		needed := len(oneShot)/2 + 1
		successes := 0
		for range oneShot {
			it := <-completions
			collect(it)
			if results[it.idx].Success {
				successes++
			}
			if successes >= needed {
				break
			}
		}
	case JoinCustom:
		for range oneShot {
			it := <-completions
			collect(it)
			if custom != nil && custom(append([]FiberResult(nil), results...)) {
				break
			}
		}
	default:
		for range oneShot {
			collect(<-completions)
		}
	}

	for _, it := range continuous {
		atomic.StoreInt32(it.stopFlag, 1)
	}
	for _, it := range continuous {
		<-it.f.Done()
		collect(it)
	}

	allSucceeded := true
	for _, r := range results {
		if r.Pending || !r.Success {
			allSucceeded = false
			break
		}
	}

	return &DispatchResult{
		AllSucceeded:         allSucceeded,
		Results:              results,
		TotalExecutionTimeNs: time.Since(started).Nanoseconds(),
	}, nil
}

// DispatchHandle is returned by DispatchParallelAsync; WaitForDispatch
// blocks on it.
type DispatchHandle struct {
	done chan struct{}
	res  *DispatchResult
	err  error
}

// DispatchParallelAsync starts a DispatchParallel call on a background
// goroutine and returns immediately.
func (d *Dispatcher) DispatchParallelAsync(fm *FiberMap, pctx *PartyContext, strategy JoinStrategy, custom CustomPredicate) *DispatchHandle {
	h := &DispatchHandle{done: make(chan struct{})}
	go func() {
		h.res, h.err = d.DispatchParallel(fm, pctx, strategy, custom)
		close(h.done)
	}()
	return h
}

// WaitForDispatch blocks until h's dispatch completes and returns its
// result.
func WaitForDispatch(h *DispatchHandle) (*DispatchResult, error) {
	<-h.done
	return h.res, h.err
}
