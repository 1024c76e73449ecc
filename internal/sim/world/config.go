package world

import (
	"log"
	"time"

	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/scene"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Tuning tuning.Tuning

	Catalogs *catalogs.Catalogs
	// Kinds defaults to the item kind over Catalogs.Items.
	Kinds *spawner.Kinds

	Host   scene.Host
	Loader scene.Loader
	Logger *log.Logger

	// Seed feeds per-spawner random sources; 0 picks one from the clock.
	Seed int64
	// Start is the simulation clock origin; zero means time.Now().
	Start time.Time

	// SpinRate is the idle rotation of live collectibles in radians/second.
	SpinRate float64
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "main"
	}
	if c.Tuning.TickRateHz <= 0 {
		c.Tuning = tuning.Defaults()
	}
	if c.Catalogs == nil {
		c.Catalogs = &catalogs.Catalogs{}
	}
	if c.Kinds == nil {
		c.Kinds = spawner.NewKinds(spawner.ItemKind(c.Catalogs.Items))
	}
	if c.Host == nil {
		c.Host = scene.NopHost{}
	}
	if c.Loader == nil {
		c.Loader = scene.ImmediateLoader{}
	}
	if c.Start.IsZero() {
		c.Start = time.Now()
	}
	if c.Seed == 0 {
		c.Seed = c.Start.UnixNano()
	}
	if c.SpinRate == 0 {
		c.SpinRate = 1.5
	}
}
