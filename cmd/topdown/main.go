// Command topdown runs the TopDown differentially private synthetic
// microdata algorithm against a YAML-configured input dataset.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/golang/glog"

	"github.com/synthcensus/topdown/engine"
	"github.com/synthcensus/topdown/internal/config"
	"github.com/synthcensus/topdown/topderr"
)

var (
	configFile = flag.String("config_file", "", "path to the run's YAML configuration file")
	resume     = flag.Bool("resume", false, "resume from an existing checkpoint instead of starting a fresh run")
)

func main() {
	flag.Parse()
	defer log.Flush()

	if *configFile == "" {
		log.Exit("topdown: --config_file is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Exitf("topdown: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e := engine.New(cfg)
	if *resume {
		err = e.ResumeRun(ctx)
	} else {
		err = e.Run(ctx)
	}
	if err != nil {
		log.Errorf("topdown: run failed: %v", err)
		os.Exit(exitCode(err))
	}
	log.Info("topdown: run complete")
}

// exitCode maps a run's terminal error to its process exit code, with one
// addition: a run cancelled mid-phase (ctx cancelled, checkpoint already
// written) exits 5 rather than the generic StateError code 1, so a caller
// can distinguish "interrupted, resumable" from "genuinely corrupt state".
func exitCode(err error) int {
	if ctxErrWrapped(err) {
		return 5
	}
	return topderr.ExitCode(err)
}

func ctxErrWrapped(err error) bool {
	te, ok := err.(*topderr.Error)
	if !ok || te.Kind != topderr.StateError {
		return false
	}
	return te.Err == context.Canceled || te.Err == context.DeadlineExceeded
}
