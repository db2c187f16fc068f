package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/agent/internal/meter"
	"github.com/wattboard/wattboard/agent/internal/scraper"
	"github.com/wattboard/wattboard/agent/internal/shipper"
)

// pipeline pairs a meter with the scraper that reads it.
type pipeline struct {
	meter config.Meter
	s     scraper.Scraper
}

// fleet is the set of pipelines currently configured. Swapped on reload.
type fleet struct {
	mu        sync.Mutex
	pipelines []pipeline
	interval  time.Duration
	sub       *scraper.Subscriber
	mqttCfg   config.MQTTConfig
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("wattboard-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Agent.Log.SlogLevel())
	slog.Info("config loaded",
		"agent_id", cfg.Agent.ID,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"meters", len(cfg.Agent.Meters),
		"scrape_interval", cfg.Agent.ScrapeInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f := &fleet{}
	engine := meter.NewEngine(cfg.Agent.Meters)
	f.rebuild(cfg.Agent)
	defer f.close()

	// Reload rebuilds scrapers and meter settings. Server endpoint, auth and
	// buffer sizes take effect on restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated config.AgentConfig) {
			level.Set(updated.Log.SlogLevel())
			engine.Configure(updated.Meters)
			f.rebuild(updated)
			slog.Info("config hot-reloaded", "meters", len(updated.Meters), "scrape_interval", updated.ScrapeInterval)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	// Scrape loop: read every meter each interval, derive readings, ship.
	go func() {
		ticker := time.NewTicker(f.scrapeInterval())
		defer ticker.Stop()
		current := f.scrapeInterval()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range f.snapshot() {
					sample, err := p.s.Scrape(ctx)
					if err != nil {
						slog.Warn("scrape error", "building", p.meter.BuildingID, "err", err)
						continue
					}
					res := engine.Process(sample)
					if res.Reading == nil {
						slog.Debug("no reading this cycle",
							"building", res.BuildingID, "reason", res.Skip, "availability", res.Availability)
						continue
					}
					ship.Ship(res.Reading)
					slog.Debug("shipped reading",
						"building", res.BuildingID,
						"value", res.Reading.Value,
						"baseline", res.Reading.Baseline,
						"uptime_pct", res.UptimePct,
					)
				}
				if next := f.scrapeInterval(); next != current {
					ticker.Reset(next)
					current = next
				}
			}
		}
	}()

	<-ctx.Done()
	slog.Info("wattboard-agent shutting down")
}

// rebuild replaces the pipelines with scrapers for a.Meters. The broker
// connection is opened the first time an mqtt meter is configured and
// replaced only when the broker settings change.
func (f *fleet) rebuild(a config.AgentConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if hasMQTT(a.Meters) && (f.sub == nil || f.mqttCfg != a.MQTT) {
		if f.sub != nil {
			f.sub.Close()
		}
		f.sub = scraper.Connect(a.MQTT)
		f.mqttCfg = a.MQTT
	}

	pipelines := make([]pipeline, 0, len(a.Meters))
	for _, m := range a.Meters {
		s, err := scraper.New(m, f.sub)
		if err != nil {
			slog.Error("skipping meter, could not build scraper", "building", m.BuildingID, "err", err)
			continue
		}
		pipelines = append(pipelines, pipeline{meter: m, s: s})
		slog.Info("registered meter", "building", m.BuildingID, "type", m.Type, "endpoint", m.Endpoint, "topic", m.Topic)
	}
	if len(pipelines) == 0 {
		slog.Warn("no meters configured, agent will idle")
	}
	f.pipelines = pipelines
	f.interval = a.ScrapeInterval
}

func (f *fleet) snapshot() []pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipelines
}

func (f *fleet) scrapeInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *fleet) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.Close()
	}
}

func hasMQTT(meters []config.Meter) bool {
	for _, m := range meters {
		if m.Type == "mqtt" {
			return true
		}
	}
	return false
}
