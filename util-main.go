package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mstarongithub/marathon-shell/common/ipc"
	"github.com/mstarongithub/marathon-shell/config"
	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	utilAction *string = flag.String(
		"action",
		"",
		"The action to perform. Can be one of:"+
			"\n\t- none: Do nothing"+
			"\n\t- outputs: List available outputs"+
			"\n\t- modes <output>: List available modes for an output"+
			"\n\t- env <command>: Show the environment an app would be launched with",
	)
	outputSelection *string = flag.String(
		"output",
		"",
		"Output to perform the action on. Required for some actions",
	)
	commandSelection *string = flag.String(
		"command",
		"",
		"Launch command to inspect. Required for -action env",
	)
	jsonOutput *bool = flag.Bool("json", false, "Print results as json")
)

func utilMain(conf *config.Config) {
	if *help {
		utilHelpMessage()
		return
	}

	switch *utilAction {
	case "env":
		utilShowEnv(conf, *commandSelection)
		return
	case "", "none":
		return
	}

	// Init a server, used for stuff like getting displays
	server, err := NewServer(nil)
	if err != nil {
		logrus.WithError(err).Fatal("initializing server")
	}
	if err = server.Start(conf.SocketName, conf.RuntimeDir); err != nil {
		logrus.WithError(err).Fatal("starting server")
	}

	switch *utilAction {
	case "outputs":
		utilListOutputs(server)
	case "modes":
		if *outputSelection == "" {
			fmt.Println("Output has to be specified")
			return
		}
		utilListOutputModes(server, *outputSelection)
	default:
		fmt.Printf("Unknown action %s\n", *utilAction)
	}
}

func utilHelpMessage() {
	fmt.Println("---- Help message for Marathon in tool mode ----")
	fmt.Println("\nIn tool mode, marathon offers various tools for figuring out configurations and similar")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file")
	fmt.Println("\t-tool: Start as a tool instead of a compositor")
	fmt.Println("\t-help: Show this help message (or the one for compositor mode if -tool is not set)")
	fmt.Println("\nTool flags:")
	fmt.Println("\t-action: The action to perform. Can be one of:")
	fmt.Println("\t\t- outputs: List available outputs")
	fmt.Println("\t\t- modes: List available modes for an output. Use with -output")
	fmt.Println("\t\t- env: Show the environment an app gets. Use with -command")
	fmt.Println("\t-output: Output to perform the action on. Required for -action modes")
	fmt.Println("\t-command: Launch command, FLATPAK: and SNAP: prefixes included. Required for -action env")
	fmt.Println("\t-json: Print results as json")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Errorln("Failed to encode result")
	}
}

func utilShowEnv(conf *config.Config, raw string) {
	cmd, err := launcher.ParseCommand(raw, conf.SocketName)
	if err != nil {
		fmt.Printf("Can't launch %q: %s\n", raw, err)
		return
	}
	env := launcher.BuildEnv(os.Environ(), launcher.EnvOptions{
		SocketName:      conf.SocketName,
		RuntimeDir:      conf.RuntimeDir,
		QtControlsStyle: conf.QtControlsStyle,
		CompositorPID:   os.Getpid(),
	}, launcher.NewIdentity(time.Now(), cmd.Resolved, 1, conf.DesktopFileDir))

	if *jsonOutput {
		printJSON(ipc.EnvResponse{
			Command:  cmd.Original,
			Resolved: cmd.Resolved,
			Kind:     cmd.Kind.String(),
			Env:      env,
		})
		return
	}
	fmt.Printf("%s command, runs as: %s -c %q\n", cmd.Kind, conf.Shell, cmd.Resolved)
	for _, kv := range env {
		fmt.Printf("\t%s\n", kv)
	}
}

func utilListOutputs(server *Server) {
	outputs := server.GetOutputs()
	if *jsonOutput {
		resp := ipc.OutputResponse{OutputsFound: len(outputs)}
		for _, output := range outputs {
			resp.Outputs = append(resp.Outputs, output.Name())
		}
		printJSON(resp)
		return
	}
	for i, output := range outputs {
		fmt.Printf("Output %v: %s\n", i, output.Name())
	}
}

func utilListOutputModes(server *Server, outputName string) {
	outputs := server.GetOutputs()
	filtered := sliceutils.Filter(outputs, func(output *wlroots.Output) bool {
		return output.Name() == outputName
	})
	if len(filtered) == 0 {
		fmt.Printf("Output %s not found\n", outputName)
		return
	}
	modes := filtered[0].Modes()

	if *jsonOutput {
		resp := ipc.OutputResponse{
			Outputs:      []string{outputName},
			OutputModes:  map[string][]ipc.OutputMode{},
			OutputsFound: 1,
		}
		for _, mode := range modes {
			resp.OutputModes[outputName] = append(resp.OutputModes[outputName], ipc.OutputMode{
				Width:       int(mode.Width()),
				Height:      int(mode.Height()),
				RefreshRate: int(mode.Refresh()),
				Preferred:   mode.Preferred(),
			})
		}
		printJSON(resp)
		return
	}

	fmt.Printf("Modes for output %s:\n", outputName)
	for _, mode := range modes {
		if mode.Preferred() {
			fmt.Printf("\t- %dx%d@%d(Ratio: %d) (preferred)\n", mode.Width(), mode.Height(), mode.Refresh(), mode.PictureAspectRatio())
		} else {
			fmt.Printf("\t- %dx%d@%d(Ratio: %d)\n", mode.Width(), mode.Height(), mode.Refresh(), mode.PictureAspectRatio())
		}
	}
}
