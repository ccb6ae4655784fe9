package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crossway/internal/domain"
	"crossway/pkg/crosswayapi"
	"crossway/pkg/scenario"
)

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:8080", "crossway server base URL")
		file     = flag.String("scenario", "", "YAML scenario to replay; random traffic when empty")
		rate     = flag.Duration("every", 400*time.Millisecond, "interval between random spawns")
		duration = flag.Duration("for", time.Minute, "how long to generate random traffic")
		lanes    = flag.Bool("lanes", false, "pick the lane class client-side for random traffic")
		verbose  = flag.Bool("v", false, "log every spawn")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := crosswayapi.New(*addr)

	var spawns []scenario.Spawn
	if *file != "" {
		s, err := scenario.Load(*file)
		if err != nil {
			logger.Error("failed to load scenario", "error", err)
			os.Exit(1)
		}
		spawns = s.Expand()
		logger.Info("replaying scenario", "name", s.Name, "spawns", len(spawns), "duration", s.Duration())
	} else {
		spawns = randomSpawns(*rate, *duration, *lanes)
		logger.Info("generating random traffic", "spawns", len(spawns), "every", *rate, "for", *duration)
	}

	var accepted, declined int
	err := scenario.Play(ctx, spawns, func(ctx context.Context, sp scenario.Spawn) error {
		res, err := client.Spawn(ctx, sp.Direction, sp.Lane)
		if err != nil {
			return err
		}
		if res.Accepted {
			accepted++
		} else {
			declined++
		}
		logger.Debug("spawn", "at", sp.At, "direction", sp.Direction, "result", res.String())
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("traffic generation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("done", "accepted", accepted, "declined", declined)
}

func randomSpawns(every, total time.Duration, lanes bool) []scenario.Spawn {
	if every <= 0 {
		every = 400 * time.Millisecond
	}
	var out []scenario.Spawn
	for at := time.Duration(0); at < total; at += every {
		sp := scenario.Spawn{At: at, Direction: crosswayapi.RandomDirection}
		if lanes {
			sp.Direction = domain.Directions[rand.IntN(len(domain.Directions))].String()
			sp.Lane = domain.LaneClasses[rand.IntN(len(domain.LaneClasses))].String()
		}
		out = append(out, sp)
	}
	return out
}
