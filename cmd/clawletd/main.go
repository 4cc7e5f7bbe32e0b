// Command clawletd is the broker's server entrypoint: it wires the state
// store, ledger, rules engine, on-chain client, wallet manager and audit
// bus into a Broker, then serves the shared tool catalog over both the
// JSON-HTTP and stdio bindings (spec.md §4.7).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"gopkg.in/urfave/cli.v1"

	"github.com/clawlet/broker/audit"
	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/chainio"
	"github.com/clawlet/broker/config"
	"github.com/clawlet/broker/export"
	"github.com/clawlet/broker/httpapi"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/rules"
	"github.com/clawlet/broker/stdioapi"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/tools"
	"github.com/clawlet/broker/wallet"
)

var logger = log.NewModuleLogger(log.Config)

var app = cli.NewApp()

func init() {
	color.Output = colorable.NewColorableStdout()
	app.Name = "clawletd"
	app.Usage = "local-first x402 payment broker"
	app.Flags = config.Flags
	app.Action = run
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}

	st, err := store.OpenAt(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("cannot open wallet state: %w", err)
	}

	mirror, err := export.NewFromEnv()
	if err != nil {
		logger.Warnw("export mirror disabled", "err", err)
	}
	l := ledger.New(st, mirror)
	rulesEngine := rules.New(st, l)

	chainClient, err := chainio.New(os.Getenv("CLAWLET_REDIS_ADDR"))
	if err != nil {
		return fmt.Errorf("cannot build chain client: %w", err)
	}

	manager, err := wallet.NewManager(st, chainClient)
	if err != nil {
		return fmt.Errorf("cannot build wallet manager: %w", err)
	}

	auditBus, err := audit.NewFromEnv()
	if err != nil {
		logger.Warnw("audit bus disabled", "err", err)
	}

	br := broker.New(st, manager, l, rulesEngine, auditBus)
	defer br.Close()

	catalog := tools.New(manager, br, rulesEngine, l, st)

	if catalog.DemoMode {
		color.Yellow("clawletd: demo mode active, write operations are disabled")
	}

	go func() {
		in := stdioapi.New(catalog, os.Stdin, os.Stdout)
		if err := in.Run(); err != nil {
			logger.Errorw("stdio binding exited", "err", err)
		}
	}()

	server := httpapi.New(catalog)
	addr := ":" + cfg.Port
	color.Green("clawletd: listening on %s", addr)
	logger.Infow("listening", "addr", addr, "demoMode", catalog.DemoMode)
	return http.ListenAndServe(addr, server.Handler())
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
