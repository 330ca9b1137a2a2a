package main

import (
	"os"

	"github.com/mstarongithub/marathon-shell/compositor"
	"github.com/mstarongithub/marathon-shell/console"
	"github.com/mstarongithub/marathon-shell/repl"
	"github.com/mstarongithub/marathon-shell/util/wrappers"
	"github.com/sirupsen/logrus"
)

func replRunner(server *Server, comp *compositor.Compositor) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))

	events, err := comp.Subscribe("console")
	if err != nil {
		logrus.WithError(err).Warningln("Console won't show compositor events")
	} else {
		go console.Watch(events, commandRepl)
		defer comp.Unsubscribe("console")
	}

	logrus.Debugln("Starting repl")
	commands := console.New(comp, server.Stop, server.inspect)
	if err := commandRepl.Run(commands.Handle); err != nil {
		logrus.WithError(err).Warningln("Console stopped")
	}
}
