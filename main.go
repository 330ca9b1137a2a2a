// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"

	"github.com/mstarongithub/marathon-shell/config"
	"github.com/sirupsen/logrus"
)

var (
	configFile *string = flag.String(
		"config",
		"",
		"Path to the config file. Searched in the xdg config dirs as "+config.DefaultConfigFile+" if not set",
	)
	toolMode *bool = flag.Bool("tool", false, "Start as a tool instead of a compositor")
	help     *bool = flag.Bool("help", false, "Show the help message for the selected mode")
)

func main() {
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatalln("Failed to load config")
	}
	if err = conf.Validate(); err != nil {
		logrus.WithError(err).Fatalln("Invalid config")
	}
	setupLogging(conf)

	if *toolMode {
		utilMain(conf)
		return
	}
	if *help {
		compositorHelpMessage()
		return
	}
	wlMain(conf)
}

func setupLogging(conf *config.Config) {
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logrus.WithField("level", conf.LogLevel).Warningln("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	if conf.Debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

func compositorHelpMessage() {
	fmt.Println("---- Help message for Marathon ----")
	fmt.Println("\nMarathon is a wayland compositor for phone shells. It launches apps, tracks their windows and closes them")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file")
	fmt.Println("\t-tool: Start as a tool instead of a compositor")
	fmt.Println("\t-help: Show this help message (or the one for tool mode if -tool is set)")
	fmt.Println("\nEnvironment:")
	fmt.Println("\tMARATHON_DEBUG=1: Log debug output and forward app stdout")
	fmt.Println("\tMARATHON_*: Overrides for every config option, for example MARATHON_SOCKET_NAME")
	fmt.Println("\nWith start_type 0 (the default), type help on the console for the available commands")
}
