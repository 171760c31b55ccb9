package main

import (
	"context"
	"fmt"

	"context-injector/internal/di"
	"context-injector/internal/infrastructure/browser/rod"
	"context-injector/internal/infrastructure/env"
	"context-injector/internal/util"
)

func runBrowser(ctx context.Context, c *di.Container, e *env.EnvService, addr string) error {
	chatURL := e.MustGet("CHAT_URL")

	cfg := rod.DefaultConfig()
	cfg.Headless = e.GetBool("BROWSER_HEADLESS", false)
	cfg.NoSandbox = e.GetBool("BROWSER_NO_SANDBOX", false)
	cfg.Bin = e.Get("BROWSER_BIN")
	cfg.UserDataDir = e.GetWithDefault("BROWSER_PROFILE_DIR", ".browser-profile")

	browser, err := rod.Launch(ctx, cfg, c.Logger.WithField("component", "browser"))
	if err != nil {
		return err
	}
	defer browser.Close()

	if err := browser.Navigate(ctx, chatURL); err != nil {
		return err
	}

	if c.Console != nil && e.GetBool("WAIT_FOR_LOGIN", true) {
		if err := c.Console.WaitForUserAction(ctx, fmt.Sprintf("Log in to %s in the browser window if needed", chatURL)); err != nil {
			return err
		}
	}

	doc, err := rod.NewDocument(ctx, browser.Page(), c.Logger.WithField("component", "dom"))
	if err != nil {
		return fmt.Errorf("attach to page: %w", err)
	}
	defer doc.Close()

	doc.SetSnapshotDir(c.Config.SnapshotDir)
	engine := c.NewInterceptor(doc, doc)

	if addr != "" {
		server := c.NewServer(engine)
		util.SafeGo(c.Logger, "telemetry-server", func() {
			if err := server.ListenAndServe(ctx, addr); err != nil {
				c.Logger.Error("telemetry server failed", "error", err)
			}
		})
	}

	c.Logger.Info("engine attached", "url", chatURL)
	return engine.Run(ctx)
}
