package module

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

var (
	// ErrDuplicateModule is returned when a module ID is already registered.
	ErrDuplicateModule = eris.New("duplicate module id")
	// ErrInvalidModule is returned for nil modules and modules without an ID.
	ErrInvalidModule = eris.New("invalid module")
	// ErrUnknownModule is returned when no module has the requested ID.
	ErrUnknownModule = eris.New("unknown module")
)

type batchKey struct{}

// Registry owns the registered modules and sequences their lifecycle.
//
// Newly registered modules wait in a pending-load queue; loaded modules wait in a
// pending-start queue. LoadAll and StartAll drain the queues, and UpdateAll promotes both
// before ticking, so modules registered mid-session come up on the next tick.
//
// A module whose hook fails is unloaded and quarantined: batch operations skip it until it
// is reloaded. Lifecycle work is serialized; a hook may call back into the registry with
// the context it was given.
//
// Unregister and UnregisterOwner never wait for lifecycle work running on another
// goroutine. Such a removal is queued and applied as soon as that work finishes, so a
// command handler may remove modules while a tick is dispatching commands.
type Registry struct {
	batchMu sync.Mutex // Serializes lifecycle work

	mu            sync.Mutex // Guards the collections below
	order         []*Instance
	byID          map[string]*Instance
	pendingLoad   []*Instance
	pendingStart  []*Instance
	pendingRemove []*Instance

	hooks hooks
	log   zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithHostFactory sets how each module's Host is built when it loads.
func WithHostFactory(fn func(*Instance) Host) Option {
	return func(r *Registry) { r.hooks.hostFor = fn }
}

// WithOnUnloaded sets a callback run after a module unloads or fails to load, used to drop
// everything the module registered.
func WithOnUnloaded(fn func(*Instance)) Option {
	return func(r *Registry) { r.hooks.onUnloaded = fn }
}

func WithExceptionSink(sink logsink.ExceptionSink) Option {
	return func(r *Registry) {
		r.hooks.report = sink.OnException
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID: make(map[string]*Instance),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a module with no owner and no settings.
func (r *Registry) Register(m Module) error {
	return r.RegisterOwned("", nil, m)
}

// RegisterOwned adds a module that belongs to a plugin, with the settings it was packaged
// with. The module waits in the pending-load queue.
func (r *Registry) RegisterOwned(owner string, settings map[string]string, m Module) error {
	if m == nil {
		return eris.Wrap(ErrInvalidModule, "module is nil")
	}
	id := strings.TrimSpace(m.ID())
	if id == "" {
		return eris.Wrapf(ErrInvalidModule, "module %T has an empty id", m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok {
		return eris.Wrapf(ErrDuplicateModule, "module %q (%T) is already registered by %T",
			id, m, existing.module)
	}
	inst := &Instance{
		module:   m,
		id:       id,
		owner:    owner,
		settings: maps.Clone(settings),
		state:    newStateHolder(),
		log:      r.log.With().Str("module", id).Logger(),
		hooks:    &r.hooks,
	}
	if inst.settings == nil {
		inst.settings = map[string]string{}
	}
	r.order = append(r.order, inst)
	r.byID[id] = inst
	r.pendingLoad = append(r.pendingLoad, inst)
	r.log.Debug().Str("module", id).Str("owner", owner).Msg("module registered")
	return nil
}

// Unregister unloads a module and removes it from the registry. While lifecycle work runs
// on another goroutine the removal is queued instead, and unload failures are only
// reported to the exception sink.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	inst, ok := r.Instance(id)
	if !ok {
		return eris.Wrapf(ErrUnknownModule, "module %q", id)
	}

	ctx, unlock, ok := r.tryLockBatch(ctx)
	if !ok {
		r.deferRemoval(ctx, inst)
		return nil
	}
	defer unlock()

	if !r.registered(inst) {
		return eris.Wrapf(ErrUnknownModule, "module %q", id)
	}
	err := inst.unload(ctx)
	r.remove(inst)
	return err
}

// UnregisterOwner unloads and removes every module of one plugin, newest first. It returns
// the IDs it removed or queued for removal.
func (r *Registry) UnregisterOwner(ctx context.Context, owner string) []string {
	ctx, unlock, ok := r.tryLockBatch(ctx)
	if !ok {
		var owned []*Instance
		var ids []string
		for _, inst := range slices.Backward(r.snapshot()) {
			if inst.owner == owner {
				owned = append(owned, inst)
				ids = append(ids, inst.ID())
			}
		}
		if len(owned) > 0 {
			r.deferRemoval(ctx, owned...)
		}
		return ids
	}
	defer unlock()

	var removed []string
	for _, inst := range slices.Backward(r.snapshot()) {
		if inst.owner != owner {
			continue
		}
		_ = inst.unload(ctx) // Reported by the instance
		r.remove(inst)
		removed = append(removed, inst.ID())
	}
	return removed
}

// Reload asks for a module to be unloaded and loaded again on the next UpdateAll. It also
// lifts the quarantine of a failed module.
func (r *Registry) Reload(id string) error {
	inst, ok := r.Instance(id)
	if !ok {
		return eris.Wrapf(ErrUnknownModule, "module %q", id)
	}
	inst.reload.Store(true)
	return nil
}

// LoadAll loads every registered module that is unloaded and not quarantined, in
// registration order, and queues them to start.
func (r *Registry) LoadAll(ctx context.Context) {
	ctx, unlock := r.lockBatch(ctx)
	defer unlock()

	r.mu.Lock()
	r.pendingLoad = nil
	r.mu.Unlock()

	for _, inst := range r.snapshot() {
		if inst.State() == StateUnloaded && !inst.Quarantined() {
			r.loadOne(ctx, inst)
		}
	}
}

// StartAll starts every loaded module in registration order.
func (r *Registry) StartAll(ctx context.Context) {
	ctx, unlock := r.lockBatch(ctx)
	defer unlock()

	r.mu.Lock()
	r.pendingStart = nil
	r.mu.Unlock()

	for _, inst := range r.snapshot() {
		if inst.State() == StateLoaded && !inst.Quarantined() {
			_ = inst.start(ctx) // Reported by the instance
		}
	}
}

// UpdateAll applies pending reloads, loads and starts pending modules, then ticks every
// started module in registration order.
func (r *Registry) UpdateAll(ctx context.Context, delta time.Duration) {
	ctx, unlock := r.lockBatch(ctx)
	defer unlock()
	start := time.Now()

	for _, inst := range r.snapshot() {
		if inst.reload.CompareAndSwap(true, false) {
			_ = inst.unload(ctx)
			inst.quarantined.Store(false)
			r.mu.Lock()
			r.pendingLoad = append(r.pendingLoad, inst)
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	toLoad := r.pendingLoad
	r.pendingLoad = nil
	r.mu.Unlock()
	for _, inst := range toLoad {
		if r.registered(inst) && inst.State() == StateUnloaded && !inst.Quarantined() {
			r.loadOne(ctx, inst)
		}
	}

	r.mu.Lock()
	toStart := r.pendingStart
	r.pendingStart = nil
	r.mu.Unlock()
	for _, inst := range toStart {
		if r.registered(inst) && inst.State() == StateLoaded {
			_ = inst.start(ctx)
		}
	}

	for _, inst := range r.snapshot() {
		_ = inst.update(ctx, delta) // Not started: ignored. Failed: quarantined.
	}
	statsd.EmitTickStat(start, "modules")
}

// StopAll stops every started module, newest first.
func (r *Registry) StopAll(ctx context.Context) {
	ctx, unlock := r.lockBatch(ctx)
	defer unlock()

	for _, inst := range slices.Backward(r.snapshot()) {
		if inst.State() == StateStarted {
			_ = inst.stop(ctx)
		}
	}
}

// UnloadAll unloads every module, newest first, and clears the pending queues. Modules stay
// registered and come back with LoadAll.
func (r *Registry) UnloadAll(ctx context.Context) {
	ctx, unlock := r.lockBatch(ctx)
	defer unlock()

	r.mu.Lock()
	r.pendingLoad, r.pendingStart = nil, nil
	r.mu.Unlock()

	for _, inst := range slices.Backward(r.snapshot()) {
		_ = inst.unload(ctx)
	}
}

// Get returns the module registered under id.
func (r *Registry) Get(id string) (Module, bool) {
	inst, ok := r.Instance(id)
	if !ok {
		return nil, false
	}
	return inst.module, true
}

// Instance returns the registration of id.
func (r *Registry) Instance(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[strings.TrimSpace(id)]
	return inst, ok
}

// State returns the lifecycle state of id. Unknown modules report StateUnloaded and false.
func (r *Registry) State(id string) (State, bool) {
	inst, ok := r.Instance(id)
	if !ok {
		return StateUnloaded, false
	}
	return inst.State(), true
}

// Instances returns every registration in registration order.
func (r *Registry) Instances() []*Instance {
	return r.snapshot()
}

// Active returns the started modules in registration order.
func (r *Registry) Active() []Module {
	var active []Module
	for _, inst := range r.snapshot() {
		if inst.State() == StateStarted {
			active = append(active, inst.module)
		}
	}
	return active
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Lookup returns the first registered module of concrete type T.
func Lookup[T Module](r *Registry) (T, bool) {
	for _, inst := range r.snapshot() {
		if m, ok := inst.module.(T); ok {
			return m, true
		}
	}
	var zero T
	return zero, false
}

func (r *Registry) loadOne(ctx context.Context, inst *Instance) {
	if err := inst.load(ctx); err != nil {
		return // Reported by the instance
	}
	r.mu.Lock()
	r.pendingStart = append(r.pendingStart, inst)
	r.mu.Unlock()
}

func (r *Registry) snapshot() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *Registry) registered(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[inst.ID()] == inst
}

func (r *Registry) remove(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, inst.ID())
	drop := func(s []*Instance) []*Instance {
		return slices.DeleteFunc(s, func(x *Instance) bool { return x == inst })
	}
	r.order = drop(r.order)
	r.pendingLoad = drop(r.pendingLoad)
	r.pendingStart = drop(r.pendingStart)
}

// lockBatch takes the lifecycle lock unless ctx shows the caller already holds it.
func (r *Registry) lockBatch(ctx context.Context) (context.Context, func()) {
	if ctx.Value(batchKey{}) == r {
		return ctx, func() {}
	}
	r.batchMu.Lock()
	ctx = context.WithValue(ctx, batchKey{}, r)
	return ctx, func() { r.unlockBatch(ctx) }
}

// tryLockBatch is lockBatch without waiting. It reports false when another goroutine holds
// the lock.
func (r *Registry) tryLockBatch(ctx context.Context) (context.Context, func(), bool) {
	if ctx.Value(batchKey{}) == r {
		return ctx, func() {}, true
	}
	if !r.batchMu.TryLock() {
		return ctx, nil, false
	}
	ctx = context.WithValue(ctx, batchKey{}, r)
	return ctx, func() { r.unlockBatch(ctx) }, true
}

// unlockBatch applies queued removals and releases the lifecycle lock. A removal queued
// after the last drain but before the release is picked up by taking the lock again.
func (r *Registry) unlockBatch(ctx context.Context) {
	for {
		r.applyRemovals(ctx)
		r.batchMu.Unlock()

		r.mu.Lock()
		queued := len(r.pendingRemove)
		r.mu.Unlock()
		if queued == 0 || !r.batchMu.TryLock() {
			return
		}
	}
}

// deferRemoval queues modules for removal by whoever holds the lifecycle lock.
func (r *Registry) deferRemoval(ctx context.Context, insts ...*Instance) {
	r.mu.Lock()
	r.pendingRemove = append(r.pendingRemove, insts...)
	r.mu.Unlock()
	for _, inst := range insts {
		r.log.Debug().Str("module", inst.ID()).Msg("lifecycle busy, module removal queued")
	}

	// The holder may have released the lock before seeing the queue.
	if r.batchMu.TryLock() {
		r.unlockBatch(context.WithValue(ctx, batchKey{}, r))
	}
}

func (r *Registry) applyRemovals(ctx context.Context) {
	for {
		r.mu.Lock()
		queued := r.pendingRemove
		r.pendingRemove = nil
		r.mu.Unlock()
		if len(queued) == 0 {
			return
		}
		for _, inst := range queued {
			if r.registered(inst) {
				_ = inst.unload(ctx) // Reported by the instance
				r.remove(inst)
			}
		}
	}
}
