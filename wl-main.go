package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mstarongithub/marathon-shell/compositor"
	"github.com/mstarongithub/marathon-shell/config"
	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/mstarongithub/marathon-shell/metrics"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
	"golang.org/x/sys/unix"
)

func fatal(msg string, err error) {
	fmt.Printf("error %s: %s\n", msg, err)
	os.Exit(1)
}

func wlMain(conf *config.Config) {
	wlroots.OnLog(wlroots.LogImportanceError, func(importance wlroots.LogImportance, msg string) {
		switch importance {
		case wlroots.LogImportanceDebug:
			logrus.Debugln(msg)
		case wlroots.LogImportanceInfo:
			logrus.Infoln(msg)
		case wlroots.LogImportanceError:
			logrus.Errorln(msg)
		case wlroots.LogImportanceSilent:
			return
		}
	})

	m := metrics.New()
	apps := launcher.New(launcher.Options{
		SocketName:      conf.SocketName,
		RuntimeDir:      conf.RuntimeDir,
		Shell:           conf.Shell,
		DesktopFileDir:  conf.DesktopFileDir,
		QtControlsStyle: conf.QtControlsStyle,
		Debug:           conf.Debug,
	})
	comp := compositor.New(compositor.Options{
		Launcher:        apps,
		Metrics:         m,
		GracePeriod:     conf.GracePeriod(),
		TerminatePeriod: conf.TerminatePeriod(),
		ShutdownTimeout: conf.ShutdownTimeout(),
	})

	server, err := NewServer(comp)
	if err != nil {
		fatal("initializing server", err)
	}
	// Without a socket no app can ever connect
	if err = server.Start(conf.SocketName, conf.RuntimeDir); err != nil {
		fatal("starting server", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	compDone := make(chan struct{})
	go func() {
		defer close(compDone)
		if err := comp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Errorln("Compositor stopped")
		}
	}()

	stopMetrics := serveMetrics(conf.MetricsAddr, m)
	defer stopMetrics()

	sigCtx, stopSignals := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil {
			logrus.Infoln("Got termination signal, stopping")
			server.Stop()
		}
	}()

	switch conf.StartType {
	case config.START_REPL:
		go replRunner(server, comp)
	case config.START_SINGLE_COMMAND:
		if _, ok := comp.LaunchApp(conf.StartCommand); !ok {
			logrus.WithField("command", conf.StartCommand).Warningln("Start command was not launched")
		}
	case config.START_NONE:
	}

	// The event loop renders, so this goroutine's thread gets the priority
	if err = setRealtimePriority(conf.RealtimePriority); err != nil {
		logrus.WithError(err).Warningln("Running without realtime priority")
	}

	if err = server.Run(); err != nil {
		fatal("running server", err)
	}

	comp.Shutdown()
	cancel()
	<-compDone
}

// Serves prometheus metrics on addr, if set. The returned func stops the server
func serveMetrics(addr string, m *metrics.Metrics) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.WithField("addr", addr).Infoln("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Errorln("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
