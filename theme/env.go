package theme

import "time"

// Storage persists preference strings by key.
type Storage interface {
	// Get returns the value stored under key and whether one exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// StorageEvents reports changes made to storage by someone else, such as
// another tab or process.
//
// Watch implementations must not call fn synchronously, and stop must not
// wait for an in-flight fn to return.
type StorageEvents interface {
	Watch(fn func(key, value string)) (stop func())
}

// SystemPreference answers whether the operating system prefers a dark
// appearance and reports changes. Watch follows the same rules as
// StorageEvents.Watch.
type SystemPreference interface {
	PrefersDark() bool
	Watch(fn func(dark bool)) (stop func())
}

// Document is the root element the resolved theme is written to.
type Document interface {
	RemoveClass(names ...string)
	AddClass(name string)
	SetAttribute(name, value string)
	RemoveAttribute(name string)
	SetStyleProperty(name, value string)
	RemoveStyleProperty(name string)
	// InsertStyle appends a style element to the document head and returns
	// its id.
	InsertStyle(css string) string
	RemoveStyle(id string)
	// Reflow forces pending style changes to be computed.
	Reflow()
}

// Deferrer runs f once after at least d has elapsed.
type Deferrer interface {
	AfterFunc(d time.Duration, f func())
}

// DeferFunc adapts a function to the Deferrer interface.
type DeferFunc func(d time.Duration, f func())

// AfterFunc calls fn(d, f).
func (fn DeferFunc) AfterFunc(d time.Duration, f func()) {
	fn(d, f)
}

// TimerDeferrer schedules with time.AfterFunc.
var TimerDeferrer Deferrer = DeferFunc(func(d time.Duration, f func()) {
	time.AfterFunc(d, f)
})

// Environment bundles the capabilities the engine runs against. Any field
// may be nil, in which case the concern it covers becomes a no-op.
type Environment struct {
	Storage       Storage
	StorageEvents StorageEvents
	System        SystemPreference
	Document      Document
	Deferrer      Deferrer
}

// MergeStorageEvents watches every non-nil source with the same callback.
func MergeStorageEvents(sources ...StorageEvents) StorageEvents {
	var out storageEventsGroup
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type storageEventsGroup []StorageEvents

func (g storageEventsGroup) Watch(fn func(key, value string)) (stop func()) {
	stops := make([]func(), 0, len(g))
	for _, s := range g {
		stops = append(stops, s.Watch(fn))
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}
