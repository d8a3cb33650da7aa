// Package eventfx provides the event bus to go.uber.org/fx applications.
//
//	app := fx.New(
//	    eventfx.Module,
//	    fx.Supply(&cfg),                       // optional *event.BusConfig
//	    eventfx.AsHandler(newOrderProjection), // func(...) eventfx.Registration
//	)
package eventfx

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/danielemariani/domain-events/pkg/domainevents/event"
	"github.com/danielemariani/domain-events/pkg/domainevents/failure"
)

// HandlersGroup is the fx value group collecting handler registrations.
const HandlersGroup = "domainevents.handlers"

// Registration binds a handler to an event name. An empty Name registers
// the handler for every event.
type Registration struct {
	Name    string
	Handler event.Handler
}

// Module provides *event.Bus and registers every Registration in HandlersGroup.
var Module = fx.Module("domainevents",
	fx.Provide(NewBus),
	fx.Invoke(registerHandlers),
)

// BusParams holds the optional dependencies of the bus.
type BusParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *event.BusConfig `optional:"true"`
	Logger    *slog.Logger     `optional:"true"`
	Failures  failure.Store    `optional:"true"`
}

// NewBus builds the bus and closes it when the application stops.
// Fields already set on the supplied config take precedence over the
// injected logger and failure store.
func NewBus(p BusParams) *event.Bus {
	cfg := event.DefaultBusConfig
	if p.Config != nil {
		cfg = *p.Config
	}
	if cfg.Logger == nil {
		cfg.Logger = p.Logger
	}
	if cfg.Failures == nil {
		cfg.Failures = p.Failures
	}

	bus := event.NewBus(cfg)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	return bus
}

type registerParams struct {
	fx.In

	Bus           *event.Bus
	Registrations []Registration `group:"domainevents.handlers"`
}

func registerHandlers(p registerParams) error {
	for _, r := range p.Registrations {
		var err error
		if r.Name == "" {
			err = p.Bus.RegisterAll(r.Handler)
		} else {
			err = p.Bus.Register(r.Handler, r.Name)
		}
		if err != nil {
			return fmt.Errorf("register handler for %q: %w", r.Name, err)
		}
	}
	return nil
}

// AsHandler provides constructor's Registration result to HandlersGroup.
func AsHandler(constructor any) fx.Option {
	return fx.Provide(
		fx.Annotate(constructor, fx.ResultTags(`group:"domainevents.handlers"`)),
	)
}
