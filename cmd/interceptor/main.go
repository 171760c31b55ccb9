// Command interceptor attaches the context-injection engine to a chat page,
// either in a Chromium window driven over CDP or, with -replay, to a saved
// HTML page for a single offline attempt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"context-injector/internal/di"
	"context-injector/internal/infrastructure/env"
)

func main() {
	replay := flag.String("replay", "", "run one attempt against a saved HTML page instead of a browser")
	message := flag.String("message", "", "message typed into the page in -replay mode")
	addr := flag.String("addr", "", "serve /healthz, /status, /telemetry and /metrics on this address")
	flag.Parse()

	envService := env.NewEnvService()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, envService, di.ConfigFromEnv(envService))
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer container.Close()

	if *addr == "" {
		*addr = envService.Get("TELEMETRY_ADDR")
	}

	if *replay != "" {
		err = runReplay(ctx, container, *replay, *message, os.Stdout)
	} else {
		err = runBrowser(ctx, container, envService, *addr)
	}
	if err != nil {
		container.Logger.Error("interceptor stopped with error", "error", err)
		fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		container.Close()
		os.Exit(1)
	}
}
