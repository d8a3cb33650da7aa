package event

import "sync"

var (
	defaultMu     sync.Mutex
	defaultOnce   sync.Once
	defaultBus    *Bus
	defaultConfig = DefaultBusConfig
)

// Default returns the process-wide bus, creating it on first use.
// The bus is never recreated. Prefer constructing a Bus explicitly and
// passing it where it is needed; Default exists for code that cannot.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		defaultBus = NewBus(defaultConfig)
	})
	return defaultBus
}

// SetDefaultConfig sets the configuration used to create the default bus.
// It returns ErrDefaultInitialized once Default has been called.
func SetDefaultConfig(config BusConfig) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus != nil {
		return ErrDefaultInitialized
	}
	defaultConfig = config
	return nil
}
