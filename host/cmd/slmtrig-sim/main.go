package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"

	"slmtrig/config"
	"slmtrig/core"
	"slmtrig/sim"
)

var (
	configPath = flag.String("config", "", "YAML settings file")
	profile    = flag.String("profile", "", "Hardware profile (hamamatsu, andor)")
	encoding   = flag.String("encoding", "", "Host encoding on stdin/stdout (console, binary)")
	trace      = flag.Bool("trace", false, "Enable debug output and dump the sequencer trace on exit")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "slmtrig-sim ", log.Ldate|log.Ltime|log.Lmsgprefix)
	if *trace {
		core.SetDebugWriter(func(s string) { logger.Println(s) })
		core.SetDebugEnabled(true)
		defer core.DumpTraceRing()
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("config: %v", err)
		}
	}
	cfg.Sim.Enabled = true
	if *profile != "" {
		cfg.Profile.Base = *profile
	}
	if *encoding != "" {
		cfg.Sim.Encoding = *encoding
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}

	p, err := cfg.ResolveProfile()
	if err != nil {
		logger.Fatalf("profile: %v", err)
	}
	d, err := sim.New(p)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	logger.Printf("simulating %s controller, %s encoding", p.Name, cfg.Sim.Encoding)

	var out io.Writer = os.Stdout
	t := d.BinaryTransport(out)
	if cfg.Sim.Encoding == config.EncodingConsole {
		t = d.ConsoleTransport(out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := d.Serve(ctx, os.Stdin, t, cfg.Sim.PollInterval()); err != nil && err != context.Canceled {
		logger.Printf("serve: %v", err)
	}
}
