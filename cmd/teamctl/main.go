package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cyphermox/libteam"
)

func main() {
	configPath := flag.String("config", "/etc/teamctl/teamctl.yaml", "path to teamctl.yaml")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "teamctl: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var wg sync.WaitGroup
	for _, name := range cfg.Interfaces {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			watchInterface(ctx, logger, name, cfg.ReconnectMaxElapsed)
		}(name)
	}
	wg.Wait()
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// watchInterface allocates a fresh Handle for each connection attempt: it
// keeps retrying Init with exponential backoff whenever the team device is
// not yet present (or disappears), and otherwise pumps events until ctx is
// cancelled.
func watchInterface(ctx context.Context, logger *slog.Logger, name string, maxElapsed string) {
	log := logger.With(slog.String("interface", name))

	b := backoff.NewExponentialBackOff()
	if d, err := time.ParseDuration(maxElapsed); err == nil {
		b.MaxElapsedTime = d
	}
	b.Reset()

	for ctx.Err() == nil {
		h := libteam.Alloc(log)

		ifindex, err := h.IfName2IfIndex(name)
		if err != nil {
			log.Warn("teamctl: interface not present yet", slog.Any("err", err))
			if !sleepBackoff(ctx, b) {
				return
			}
			continue
		}

		if err := h.Init(ctx, ifindex); err != nil {
			log.Warn("teamctl: init failed", slog.Any("err", err))
			h.Free()
			if !sleepBackoff(ctx, b) {
				return
			}
			continue
		}

		log.Info("teamctl: watching team device", slog.Uint64("ifindex", uint64(ifindex)))
		b.Reset()

		registerLoggingHandlers(h, log)
		runEventLoop(ctx, h, log)

		h.Free()
		if ctx.Err() != nil {
			return
		}
		log.Warn("teamctl: event loop ended, will reconnect")
	}
}

func sleepBackoff(ctx context.Context, b *backoff.ExponentialBackOff) bool {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// registerLoggingHandlers attaches one correlation-tagged handler per
// change class, purely for observability; teamctl does not act on changes
// itself.
func registerLoggingHandlers(h *libteam.Handle, log *slog.Logger) {
	portID := uuid.New().String()
	h.RegisterChangeHandler(&libteam.ChangeHandler{
		Class: libteam.ChangeClassPort,
		Func: func(h *libteam.Handle, _ any) {
			log.Info("teamctl: port list changed", slog.String("handler_id", portID))
			for p := h.GetNextPort(nil); p != nil; p = h.GetNextPort(p) {
				log.Debug("teamctl: port",
					slog.Uint64("ifindex", uint64(p.IfIndex())),
					slog.Bool("link_up", p.IsLinkUp()),
					slog.Uint64("speed", uint64(p.Speed())))
			}
		},
	})

	optionID := uuid.New().String()
	h.RegisterChangeHandler(&libteam.ChangeHandler{
		Class: libteam.ChangeClassOption,
		Func: func(h *libteam.Handle, _ any) {
			log.Info("teamctl: option list changed", slog.String("handler_id", optionID))
			for o := h.GetNextOption(nil); o != nil; o = h.GetNextOption(o) {
				log.Debug("teamctl: option", slog.String("name", o.Name()))
			}
		},
	})
}

// runEventLoop blocks processing events until ctx is cancelled or a
// transport error occurs.
func runEventLoop(ctx context.Context, h *libteam.Handle, log *slog.Logger) {
	fd, err := h.EventFd()
	if err != nil {
		log.Error("teamctl: event_fd failed", slog.Any("err", err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		readable, err := waitReadable(ctx, fd)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Error("teamctl: select failed", slog.Any("err", err))
			return
		}
		if !readable {
			continue
		}

		if err := h.ProcessEvent(); err != nil {
			log.Error("teamctl: process_event failed", slog.Any("err", err))
			return
		}
	}
}

func waitReadable(ctx context.Context, fd int) (bool, error) {
	var set unix.FdSet
	set.Bits[fd/64] |= 1 << uint(fd%64)
	timeout := unix.Timeval{Sec: 1, Usec: 0}

	n, err := unix.Select(fd+1, &set, nil, nil, &timeout)
	if err != nil {
		return false, err
	}
	if ctx.Err() != nil {
		return false, nil
	}
	return n > 0, nil
}
