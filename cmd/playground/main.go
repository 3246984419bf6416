// Command playground runs a headless P2P coin-chain simulation from a
// JSON config file, printing each emitted event to stdout as it happens.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/saintthor/chainplay/config"
	"github.com/saintthor/chainplay/engine"
	"github.com/saintthor/chainplay/events"
)

func main() {
	cfgPath := flag.String("config", "playground.json", "path to config file")
	ticks := flag.Int("ticks", 0, "run this many manual ticks then exit (0 = run on the wall-clock scheduler until interrupted)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sim := engine.New()
	if err := sim.Init(cfg); err != nil {
		log.Fatalf("init: %v", err)
	}

	go printEvents(sim.Events())

	if *ticks > 0 {
		for i := 0; i < *ticks; i++ {
			sim.ManualTick()
		}
		return
	}

	if err := sim.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer sim.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[playground] shutting down")
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func printEvents(ch <-chan events.Event) {
	enc := json.NewEncoder(os.Stdout)
	for ev := range ch {
		_ = enc.Encode(ev)
	}
}
