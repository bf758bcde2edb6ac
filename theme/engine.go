package theme

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Engine owns the shared theme state for every consumer that mounts it.
//
// State mutation and document application happen under one lock, so a
// resolution and its DOM effect are never observed apart. Subscribers are
// called after the lock is released and may call back into the engine.
type Engine struct {
	env    Environment
	logger *slog.Logger
	delay  time.Duration

	mu          sync.Mutex
	cfg         Config
	stored      Preference
	system      Theme
	state       State
	snapshot    *Snapshot
	server      *Snapshot
	serverDef   Preference
	mounts      int
	stopSystem  func()
	stopStorage func()

	subMu  sync.Mutex
	nextID uint64
	subs   map[uint64]func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTransitionDelay sets how long transition suppression stays installed.
func WithTransitionDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

// NewEngine creates an engine in its default state.
func NewEngine(env Environment, opts ...Option) *Engine {
	e := &Engine{
		env:    env,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		delay:  DefaultTransitionDelay,
		subs:   make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "theme"))
	e.resetLocked()
	return e
}

func (e *Engine) resetLocked() {
	e.cfg = DefaultConfig()
	e.stored = ""
	e.system = Light
	e.state = State{Preference: PreferenceSystem, ResolvedTheme: Light, Source: SourceSystem}
	e.snapshot = &Snapshot{
		Preference:    e.state.Preference,
		ResolvedTheme: e.state.ResolvedTheme,
		SystemTheme:   e.system,
		Source:        e.state.Source,
	}
	e.server = nil
	e.mounts = 0
}

// Mount registers a consumer with cfg. The first mount attaches the system
// preference and storage watchers. The returned function unmounts; calling
// it more than once has no further effect.
func (e *Engine) Mount(cfg Config) (unmount func()) {
	e.mu.Lock()
	e.mounts++
	if e.mounts == 1 {
		e.attachLocked()
	}
	e.replaceConfigLocked(cfg)
	e.mu.Unlock()

	e.notify()

	var once sync.Once
	return func() {
		once.Do(e.unmount)
	}
}

func (e *Engine) unmount() {
	e.mu.Lock()
	if e.mounts == 0 {
		e.mu.Unlock()
		return
	}
	e.mounts--
	if e.mounts > 0 {
		e.mu.Unlock()
		return
	}
	e.detachLocked()
	e.cfg.ForcedTheme = ""
	e.mu.Unlock()
}

// Configure replaces the active configuration without touching the mount
// count or watcher attachment.
func (e *Engine) Configure(cfg Config) {
	e.mu.Lock()
	e.replaceConfigLocked(cfg)
	e.mu.Unlock()

	e.notify()
}

// SetTheme persists and applies p. Values other than light, dark and system
// are ignored.
func (e *Engine) SetTheme(p Preference) {
	if !p.Valid() {
		e.logger.Debug("ignoring invalid preference", slog.String("preference", string(p)))
		return
	}

	e.mu.Lock()
	e.setLocked(p)
	e.mu.Unlock()

	e.notify()
}

// ToggleMode pins the preference to the opposite of the resolved theme.
func (e *Engine) ToggleMode() {
	e.mu.Lock()
	e.setLocked(e.state.ResolvedTheme.Opposite().Preference())
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) setLocked(p Preference) {
	e.writeStorageLocked(p)
	e.stored = p
	e.updateLocked()
}

// CurrentPreference returns the persisted preference, or the configured
// default when nothing valid is stored.
func (e *Engine) CurrentPreference() Preference {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.readStorageLocked(); ok {
		return p
	}
	return e.cfg.DefaultTheme
}

// Snapshot returns the current state. The pointer only changes when the
// state does.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// ServerSnapshot returns the default-based state used when rendering without
// a browser environment.
func (e *Engine) ServerSnapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := e.cfg.DefaultTheme
	if e.server == nil || e.serverDef != def {
		st := ServerState(def)
		e.server = &Snapshot{
			Preference:    st.Preference,
			ResolvedTheme: st.ResolvedTheme,
			SystemTheme:   Light,
			Source:        st.Source,
		}
		e.serverDef = def
	}
	return e.server
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.WithDefaults()
}

// MountCount returns the number of active mounts.
func (e *Engine) MountCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounts
}

// Subscribe registers fn to be called whenever the engine state may have
// changed. The returned function removes it.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// Reset detaches watchers, drops subscribers and restores default state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.detachLocked()
	e.resetLocked()
	e.mu.Unlock()

	e.subMu.Lock()
	e.subs = make(map[uint64]func())
	e.subMu.Unlock()
}

func (e *Engine) handleSystemChange(dark bool) {
	e.mu.Lock()
	e.system = Light
	if dark {
		e.system = Dark
	}
	if e.state.Preference == PreferenceSystem && e.cfg.ForcedTheme == "" {
		e.updateLocked()
	} else {
		e.publishLocked()
	}
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) handleStorageChange(key, value string) {
	e.mu.Lock()
	if key != e.cfg.StorageKey {
		e.mu.Unlock()
		return
	}
	e.stored = ""
	if p, err := ParsePreference(value); err == nil {
		e.stored = p
	} else if value != "" {
		e.logger.Debug("ignoring invalid stored preference", slog.String("key", key), slog.String("value", value))
	}
	e.updateLocked()
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) attachLocked() {
	if e.env.System != nil && e.stopSystem == nil {
		e.stopSystem = e.env.System.Watch(e.handleSystemChange)
	}
	if e.env.StorageEvents != nil && e.stopStorage == nil {
		e.stopStorage = e.env.StorageEvents.Watch(e.handleStorageChange)
	}
}

func (e *Engine) detachLocked() {
	if e.stopSystem != nil {
		e.stopSystem()
		e.stopSystem = nil
	}
	if e.stopStorage != nil {
		e.stopStorage()
		e.stopStorage = nil
	}
}

// replaceConfigLocked swaps in cfg, strips markers only the old config
// wrote, then refreshes.
func (e *Engine) replaceConfigLocked(cfg Config) {
	prev := e.cfg
	e.cfg = cfg.WithDefaults()
	clearStale(e.env.Document, prev, e.cfg)
	e.refreshLocked()
}

// refreshLocked re-reads storage and the system preference, then resolves
// and applies.
func (e *Engine) refreshLocked() {
	e.stored, _ = e.readStorageLocked()
	if e.env.System != nil {
		e.system = Light
		if e.env.System.PrefersDark() {
			e.system = Dark
		}
	}
	e.updateLocked()
}

func (e *Engine) updateLocked() {
	e.state = Resolve(e.cfg.ForcedTheme, e.stored, e.system, e.cfg.DefaultTheme)
	Apply(e.env.Document, e.state.ResolvedTheme, e.cfg, e.env.Deferrer, e.delay)
	e.publishLocked()
}

// publishLocked replaces the snapshot only when a field changed.
func (e *Engine) publishLocked() {
	next := Snapshot{
		Preference:    e.state.Preference,
		ResolvedTheme: e.state.ResolvedTheme,
		SystemTheme:   e.system,
		Source:        e.state.Source,
	}
	if e.snapshot != nil && *e.snapshot == next {
		return
	}
	e.snapshot = &next
}

func (e *Engine) readStorageLocked() (Preference, bool) {
	if e.env.Storage == nil {
		return "", false
	}
	raw, ok, err := e.env.Storage.Get(e.cfg.StorageKey)
	if err != nil {
		e.logger.Debug("read stored preference", slog.String("key", e.cfg.StorageKey), slog.Any("error", err))
		return "", false
	}
	if !ok {
		return "", false
	}
	p, err := ParsePreference(raw)
	if err != nil {
		return "", false
	}
	return p, true
}

func (e *Engine) writeStorageLocked(p Preference) {
	if e.env.Storage == nil {
		return
	}
	if err := e.env.Storage.Set(e.cfg.StorageKey, string(p)); err != nil {
		e.logger.Debug("write stored preference", slog.String("key", e.cfg.StorageKey), slog.Any("error", err))
	}
}

func (e *Engine) notify() {
	e.subMu.Lock()
	fns := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
