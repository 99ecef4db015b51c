package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecsrelay/internal/app"
	lambdaingress "ecsrelay/internal/ingress/lambda"
)

func main() {
	var (
		cfgPath string
		mode    string
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("ECSRELAY_CONFIG"), "path to config json/yaml (empty: environment only)")
	flag.StringVar(&mode, "mode", "", "ingress: http or lambda (default: lambda when running inside AWS Lambda)")
	flag.Parse()

	if mode == "" {
		mode = string(app.ModeHTTP)
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			mode = string(app.ModeLambda)
		}
	}

	switch app.Mode(mode) {
	case app.ModeHTTP, app.ModeLambda:
	default:
		fmt.Fprintf(os.Stderr, "fatal: unknown -mode %q (want http or lambda)\n", mode)
		os.Exit(2)
	}

	a, err := app.NewApp(cfgPath, app.Mode(mode))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if app.Mode(mode) == app.ModeLambda {
		// The runtime owns the process from here on; it never returns.
		lambdaingress.Start(a.Relay(), a.Logger())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSIGTERM
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
