package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"schedbot/internal/app"
	"schedbot/internal/config"
	"schedbot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envFile string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file with overrides; missing is fine")
	flag.Parse()

	boot := logx.NewConsole("info").With(logx.Component("main"))

	if err := config.LoadDotEnv(envFile); err != nil {
		boot.Error("dotenv", logx.Err(err))
		os.Exit(1)
	}
	env, err := config.ParseOverrides()
	if err != nil {
		boot.Error("env overrides", logx.Err(err))
		os.Exit(1)
	}
	cfgm := config.NewManager(cfgPath, env)
	if _, err := cfgm.Load(); err != nil {
		boot.Error("config", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfgm)
	if err != nil {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("fatal start", logx.Err(err))
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		boot.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		boot.Debug("sd_notify ready sent")
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && reason == app.StopFatalError {
		boot.Error("exited with error", logx.Err(err))
		stopCancel()
		os.Exit(1)
	}
}
