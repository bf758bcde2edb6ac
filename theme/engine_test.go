package theme

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"themesync/document"
)

type fakeStorage struct {
	mu      sync.Mutex
	values  map[string]string
	writes  int
	failGet bool
	failSet bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{values: make(map[string]string)}
}

func (s *fakeStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return "", false, errors.New("storage unavailable")
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("quota exceeded")
	}
	s.writes++
	s.values[key] = value
	return nil
}

func (s *fakeStorage) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

type fakeSystem struct {
	mu       sync.Mutex
	dark     bool
	attaches int
	detaches int
	fn       func(bool)
}

func (s *fakeSystem) PrefersDark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

func (s *fakeSystem) Watch(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches++
	s.fn = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.detaches++
		s.fn = nil
	}
}

func (s *fakeSystem) set(dark bool) {
	s.mu.Lock()
	s.dark = dark
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(dark)
	}
}

type fakeEvents struct {
	mu       sync.Mutex
	attaches int
	detaches int
	fn       func(key, value string)
}

func (e *fakeEvents) Watch(fn func(key, value string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attaches++
	e.fn = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.detaches++
		e.fn = nil
	}
}

func (e *fakeEvents) emit(key, value string) {
	e.mu.Lock()
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		fn(key, value)
	}
}

type harness struct {
	engine   *Engine
	storage  *fakeStorage
	system   *fakeSystem
	events   *fakeEvents
	doc      *document.Root
	deferrer *manualDeferrer
	notes    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		storage:  newFakeStorage(),
		system:   &fakeSystem{},
		events:   &fakeEvents{},
		doc:      document.New(),
		deferrer: &manualDeferrer{},
	}
	h.engine = NewEngine(Environment{
		Storage:       h.storage,
		StorageEvents: h.events,
		System:        h.system,
		Document:      h.doc,
		Deferrer:      h.deferrer,
	})
	unsub := h.engine.Subscribe(func() { h.notes++ })
	t.Cleanup(func() {
		unsub()
		h.engine.Reset()
	})
	return h
}

func (h *harness) attr() string {
	v, _ := h.doc.Attribute(DefaultAttribute)
	return v
}

func TestEngine_SystemDarkByDefault(t *testing.T) {
	h := newHarness(t)
	h.system.dark = true

	unmount := h.engine.Mount(Config{})
	defer unmount()

	snap := h.engine.Snapshot()
	assert.Equal(t, Dark, snap.ResolvedTheme)
	assert.Equal(t, SourceSystem, snap.Source)
	assert.Equal(t, PreferenceSystem, snap.Preference)
	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, 1, h.notes)
}

func TestEngine_StoredBeatsSystem(t *testing.T) {
	h := newHarness(t)
	h.storage.values[DefaultStorageKey] = "dark"

	unmount := h.engine.Mount(Config{})
	defer unmount()

	snap := h.engine.Snapshot()
	assert.Equal(t, Dark, snap.ResolvedTheme)
	assert.Equal(t, SourceStorage, snap.Source)
	assert.Equal(t, Light, snap.SystemTheme)
}

func TestEngine_InvalidStoredFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	h.storage.values[DefaultStorageKey] = "blue"

	unmount := h.engine.Mount(Config{DefaultTheme: PreferenceLight})
	defer unmount()

	assert.Equal(t, "light", h.attr())
	assert.Equal(t, SourceDefault, h.engine.Snapshot().Source)
	assert.Equal(t, PreferenceLight, h.engine.CurrentPreference())
}

func TestEngine_ForcedTheme(t *testing.T) {
	h := newHarness(t)
	h.storage.values[DefaultStorageKey] = "light"

	unmount := h.engine.Mount(Config{ForcedTheme: Dark})
	defer unmount()

	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, SourceForced, h.engine.Snapshot().Source)

	h.system.set(false)
	h.engine.SetTheme(PreferenceLight)
	h.events.emit(DefaultStorageKey, "light")
	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, Dark, h.engine.Snapshot().ResolvedTheme)
}

func TestEngine_SetTheme(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()
	before := h.notes

	h.engine.SetTheme(PreferenceDark)

	assert.Equal(t, "dark", h.attr())
	v, _ := h.storage.value(DefaultStorageKey)
	assert.Equal(t, "dark", v)
	assert.Equal(t, PreferenceDark, h.engine.CurrentPreference())
	assert.Equal(t, before+1, h.notes)
}

func TestEngine_SetThemeRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	snap := h.engine.Snapshot()
	notes := h.notes

	h.engine.SetTheme("purple")

	assert.Same(t, snap, h.engine.Snapshot())
	assert.Equal(t, notes, h.notes)
	assert.Equal(t, 0, h.storage.writes)
	_, ok := h.storage.value(DefaultStorageKey)
	assert.False(t, ok)
}

func TestEngine_ToggleMode(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()
	require.Equal(t, Light, h.engine.Snapshot().ResolvedTheme)
	notes := h.notes

	h.engine.ToggleMode()

	snap := h.engine.Snapshot()
	assert.Equal(t, PreferenceDark, snap.Preference)
	assert.Equal(t, Dark, snap.ResolvedTheme)
	v, _ := h.storage.value(DefaultStorageKey)
	assert.Equal(t, "dark", v)
	assert.Equal(t, notes+1, h.notes)
}

func TestEngine_ToggleLeavesSystemMode(t *testing.T) {
	h := newHarness(t)
	h.system.dark = true
	unmount := h.engine.Mount(Config{})
	defer unmount()

	h.engine.ToggleMode()

	snap := h.engine.Snapshot()
	assert.Equal(t, PreferenceLight, snap.Preference)
	assert.Equal(t, Light, snap.ResolvedTheme)

	h.system.set(false)
	h.system.set(true)
	assert.Equal(t, Light, h.engine.Snapshot().ResolvedTheme)
}

func TestEngine_SystemChangeFollowedInSystemMode(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()
	require.Equal(t, "light", h.attr())

	h.system.set(true)

	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, Dark, h.engine.Snapshot().SystemTheme)
}

func TestEngine_SystemChangeIgnoredForExplicitPreference(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	h.engine.SetTheme(PreferenceDark)
	notes := h.notes
	h.system.set(true)
	h.system.set(false)

	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, Light, h.engine.Snapshot().SystemTheme)
	assert.Equal(t, notes+2, h.notes, "system changes always notify")
}

func TestEngine_StorageEvent(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	h.events.emit(DefaultStorageKey, "dark")
	assert.Equal(t, "dark", h.attr())
	assert.Equal(t, SourceStorage, h.engine.Snapshot().Source)

	h.events.emit(DefaultStorageKey, "neon")
	assert.Equal(t, "light", h.attr())
	assert.Equal(t, PreferenceSystem, h.engine.Snapshot().Preference)
	assert.Equal(t, SourceSystem, h.engine.Snapshot().Source)
}

func TestEngine_StorageEventOtherKeyIgnored(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	snap := h.engine.Snapshot()
	notes := h.notes

	h.events.emit("other-key", "dark")

	assert.Same(t, snap, h.engine.Snapshot())
	assert.Equal(t, notes, h.notes)
	assert.Equal(t, "light", h.attr())
}

func TestEngine_RefCountedListeners(t *testing.T) {
	h := newHarness(t)

	const n = 5
	unmounts := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		unmounts = append(unmounts, h.engine.Mount(Config{}))
	}
	assert.Equal(t, 1, h.system.attaches)
	assert.Equal(t, 1, h.events.attaches)
	assert.Equal(t, n, h.engine.MountCount())

	for _, u := range unmounts {
		u()
	}
	assert.Equal(t, 1, h.system.detaches)
	assert.Equal(t, 1, h.events.detaches)
	assert.Equal(t, 0, h.engine.MountCount())
}

func TestEngine_TwoMountsOneUnmount(t *testing.T) {
	h := newHarness(t)

	first := h.engine.Mount(Config{})
	second := h.engine.Mount(Config{})

	first()
	assert.Equal(t, 0, h.system.detaches)
	assert.Equal(t, 0, h.events.detaches)

	second()
	assert.Equal(t, 1, h.system.detaches)
	assert.Equal(t, 1, h.events.detaches)
}

func TestEngine_UnmountClampsAtZero(t *testing.T) {
	h := newHarness(t)

	unmount := h.engine.Mount(Config{})
	unmount()
	unmount()
	unmount()

	assert.Equal(t, 0, h.engine.MountCount())
	assert.Equal(t, 1, h.system.detaches)

	again := h.engine.Mount(Config{})
	defer again()
	assert.Equal(t, 2, h.system.attaches)
	assert.Equal(t, 1, h.engine.MountCount())
}

func TestEngine_UnmountClearsForcedTheme(t *testing.T) {
	h := newHarness(t)

	unmount := h.engine.Mount(Config{ForcedTheme: Dark})
	unmount()
	assert.Empty(t, h.engine.Config().ForcedTheme)
	assert.Equal(t, Dark, h.engine.Snapshot().ResolvedTheme, "state stays readable after the last unmount")

	h.engine.SetTheme(PreferenceLight)
	assert.Equal(t, Light, h.engine.Snapshot().ResolvedTheme)
}

func TestEngine_ConfigureReplacesWholesale(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{
		StorageKey:   "custom",
		Mode:         ModeClass,
		DefaultTheme: PreferenceDark,
		Variables:    map[Theme]map[string]string{Dark: {"--bg": "#000"}},
	})
	defer unmount()
	require.True(t, h.doc.HasClass("dark"))

	h.engine.Configure(Config{DefaultTheme: PreferenceLight})

	cfg := h.engine.Config()
	assert.Equal(t, DefaultStorageKey, cfg.StorageKey)
	assert.Equal(t, DefaultMode, cfg.Mode)
	assert.Nil(t, cfg.Variables)
	assert.Equal(t, "light", h.attr())
	assert.Equal(t, 1, h.engine.MountCount())
	assert.Equal(t, 1, h.system.attaches)
	assert.False(t, h.doc.HasClass("dark"))
	assert.False(t, h.doc.HasClass("light"))
	assert.Empty(t, h.doc.StyleProperty("--bg"))
}

func TestEngine_ConfigureRenamesAttribute(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()
	require.Equal(t, "light", h.attr())

	h.engine.Configure(Config{Attribute: "data-mode"})

	_, ok := h.doc.Attribute(DefaultAttribute)
	assert.False(t, ok)
	v, _ := h.doc.Attribute("data-mode")
	assert.Equal(t, "light", v)

	h.engine.Configure(Config{Mode: ModeClass, Attribute: "data-mode"})
	_, ok = h.doc.Attribute("data-mode")
	assert.False(t, ok)
	assert.True(t, h.doc.HasClass("light"))
}

func TestEngine_StorageFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t)
	h.storage.failGet = true
	h.storage.failSet = true

	unmount := h.engine.Mount(Config{DefaultTheme: PreferenceDark})
	defer unmount()
	assert.Equal(t, SourceDefault, h.engine.Snapshot().Source)

	assert.NotPanics(t, func() { h.engine.SetTheme(PreferenceLight) })
	assert.Equal(t, Light, h.engine.Snapshot().ResolvedTheme)
	assert.Equal(t, PreferenceDark, h.engine.CurrentPreference())
}

func TestEngine_NoEnvironment(t *testing.T) {
	e := NewEngine(Environment{})

	unmount := e.Mount(Config{DefaultTheme: PreferenceDark})
	e.SetTheme(PreferenceLight)
	e.ToggleMode()
	unmount()

	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, Dark, snap.ResolvedTheme)
	assert.Equal(t, PreferenceDark, e.CurrentPreference())
}

func TestEngine_SnapshotReferenceStable(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	first := h.engine.Snapshot()
	assert.Same(t, first, h.engine.Snapshot())

	h.engine.Configure(Config{})
	assert.Same(t, first, h.engine.Snapshot(), "nothing changed")

	h.engine.SetTheme(PreferenceDark)
	assert.NotSame(t, first, h.engine.Snapshot())
}

func TestEngine_ServerSnapshot(t *testing.T) {
	h := newHarness(t)
	h.system.dark = true
	unmount := h.engine.Mount(Config{DefaultTheme: PreferenceDark})
	defer unmount()

	snap := h.engine.ServerSnapshot()
	assert.Equal(t, &Snapshot{Preference: PreferenceDark, ResolvedTheme: Dark, SystemTheme: Light, Source: SourceDefault}, snap)
	assert.Same(t, snap, h.engine.ServerSnapshot())

	h.engine.Configure(Config{})
	assert.Equal(t, Light, h.engine.ServerSnapshot().ResolvedTheme)
}

func TestEngine_ReentrantSubscriber(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{})
	defer unmount()

	calls := 0
	var unsub func()
	unsub = h.engine.Subscribe(func() {
		calls++
		unsub()
		h.engine.SetTheme(PreferenceDark)
		h.engine.Subscribe(func() {})
	})

	h.engine.ToggleMode()

	assert.Equal(t, 1, calls)
	assert.Equal(t, Dark, h.engine.Snapshot().ResolvedTheme)
}

func TestEngine_TransitionSuppression(t *testing.T) {
	h := newHarness(t)
	unmount := h.engine.Mount(Config{DisableTransitionOnChange: true})
	defer unmount()

	assert.Equal(t, 1, h.doc.Styles())
	require.Len(t, h.deferrer.delays, 1)
	assert.Equal(t, DefaultTransitionDelay, h.deferrer.delays[0])

	h.deferrer.runAll()
	assert.Equal(t, 0, h.doc.Styles())
}

func TestEngine_Reset(t *testing.T) {
	h := newHarness(t)
	h.engine.Mount(Config{StorageKey: "k", DefaultTheme: PreferenceDark})
	notes := h.notes

	h.engine.Reset()

	assert.Equal(t, 0, h.engine.MountCount())
	assert.Equal(t, 1, h.system.detaches)
	assert.Equal(t, DefaultStorageKey, h.engine.Config().StorageKey)
	assert.Equal(t, &Snapshot{Preference: PreferenceSystem, ResolvedTheme: Light, SystemTheme: Light, Source: SourceSystem}, h.engine.Snapshot())

	h.engine.SetTheme(PreferenceDark)
	assert.Equal(t, notes, h.notes, "subscribers are dropped on reset")
}

func TestEngine_ConcurrentToggles(t *testing.T) {
	store := newFakeStorage()
	e := NewEngine(Environment{Storage: store, Document: document.New()})
	unmount := e.Mount(Config{})
	defer unmount()
	require.Equal(t, Light, e.Snapshot().ResolvedTheme)

	const workers, rounds = 16, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				e.ToggleMode()
			}
		}()
	}
	wg.Wait()

	// Every toggle flips the theme, so an even number of them lands back on light.
	assert.Equal(t, Light, e.Snapshot().ResolvedTheme)
	assert.Equal(t, workers*rounds, store.writes)
	v, _ := store.value(DefaultStorageKey)
	assert.Equal(t, "light", v)
}
