/*
Package config loads event bus settings from YAML, JSON, or TOML files.

# Basic Usage

	cfg, err := config.FromFile("events.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	bus := event.NewBus(event.BusConfigFromConfig(cfg.Section("bus")))

A typical file:

	bus:
	  scheduler: queue      # or "goroutine"
	  max_concurrency: 8    # goroutine scheduler only
	  metrics: true
	  tracing: true

# Type Coercion

Int accepts int and int64 (YAML, TOML) and whole float64 values (JSON).
Every accessor returns its default when the key is missing or the value
has the wrong type.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
