//
// Copyright (C) 2022 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command watchdog is the CLI entry point: it parses the --config
// file, wires a *engine.Engine per spec.md §6, installs the
// configured sinks, and runs until SIGINT/SIGTERM. Flag handling
// follows the teacher's driver/syslog and driver/log plugins, which
// take spf13/pflag as a transitive dependency via viper; this command
// uses it directly since the watchdog has no need for viper's
// layered-config machinery on top of the bespoke INI grammar.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/opswatch/watchdog/internal/config"
	"github.com/opswatch/watchdog/internal/engine"
	"github.com/opswatch/watchdog/internal/notify"
	"github.com/opswatch/watchdog/internal/statemachine"
	"github.com/opswatch/watchdog/internal/wlog"
)

const banner = `
 _ _ _       _       _         _
| | | |     | |     | |       | |
| | | | __ _| |_ ___| |__   __| | ___   __ _
| | | |/ _` + "`" + ` | __/ __| '_ \ / _` + "`" + ` |/ _ \ / _` + "`" + ` |
|_|_|_| (_| | |_ (__| | | | (_| | (_) | (_| |
 (___/ \__,_|\__\___|_| |_|\__,_|\___/ \__, |
                                        __/ |
                                       |___/
`

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var statusOnly bool

	pflag.StringVar(&configPath, "config", "", "path to watchdog configuration file (required)")
	pflag.BoolVar(&statusOnly, "status", false, "parse the configuration, print a summary, and exit")
	pflag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "watchdog: --config is required")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: failed to load configuration: %v\n", err)
		return 1
	}

	e, err := cfg.ToEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: failed to build engine: %v\n", err)
		return 1
	}

	if statusOnly {
		printStatus(cfg, e)
		return 0
	}

	fmt.Print(banner)
	wlog.Info.Printf("watchdog: tailing %s", cfg.LogFilePath)

	e.SetCallback(buildSink(cfg))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		wlog.Info.Printf("watchdog: received %s, shutting down", sig)
		e.Stop()
	}()

	if err := e.Run(); err != nil {
		wlog.Error.Printf("watchdog: engine exited with error: %v", err)
		return 1
	}
	return 0
}

// buildSink wires the logging sink (always on) and, if a webhook URL
// is configured, a notify.WebhookSink, applying the NotifyWhen filter
// at this host boundary rather than inside the engine (spec.md §6).
func buildSink(cfg *config.Config) engine.Sink {
	var webhook *notify.WebhookSink
	if cfg.WebhookURL != "" {
		webhook = notify.NewWebhookSink(cfg.WebhookURL)
	}

	return func(ev statemachine.Event) {
		logEvent(ev)
		if webhook == nil {
			return
		}
		if !cfg.ShouldNotify(ev.Kind.String()) {
			return
		}
		webhook.Deliver(ev)
	}
}

func logEvent(ev statemachine.Event) {
	switch ev.Kind {
	case statemachine.StateTimeout:
		wlog.Warn.Printf("[%s] timeout (elapsed %dms)", ev.StateName, ev.ElapsedMS)
	case statemachine.EngineLog:
		wlog.Trace.Printf("%s", ev.Description)
	default:
		wlog.Info.Printf("[%s] %s: %s", ev.StateName, ev.Kind, ev.NodeName)
	}
}

func printStatus(cfg *config.Config, e *engine.Engine) {
	fmt.Printf("log file:         %s\n", cfg.LogFilePath)
	fmt.Printf("monitor interval: %s\n", cfg.MonitorInterval)
	if cfg.WebhookURL != "" {
		fmt.Printf("webhook:          configured\n")
	} else {
		fmt.Printf("webhook:          not configured\n")
	}
	fmt.Println()
	fmt.Println("declared rules:")
	for _, rs := range e.Snapshot() {
		fmt.Printf("  %-24s phase=%-6s expecting=%-20s timeout=%dms\n",
			rs.Name, rs.Phase, rs.ExpectedNode, rs.TimeoutMS)
	}
}
