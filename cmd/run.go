package main

import (
	"context"
	"os"
	"os/signal"

	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/urfave/cli/v2"

	nullspacebridge "github.com/happybigmtn/nullspace-bridge"
	"github.com/happybigmtn/nullspace-bridge/common"
	"github.com/happybigmtn/nullspace-bridge/config"
	"github.com/happybigmtn/nullspace-bridge/ledgerclient"
	"github.com/happybigmtn/nullspace-bridge/log"
	"github.com/happybigmtn/nullspace-bridge/relayer"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
	"github.com/happybigmtn/nullspace-bridge/rpc"
)

func start(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}

	log.Init(c.Log)

	if c.Log.Environment == log.EnvironmentDevelopment {
		nullspacebridge.PrintVersion(os.Stdout)
		log.Info("Starting application")
	}

	components := cliCtx.StringSlice(config.FlagComponents)

	var rly *relayer.Relayer
	if componentEnabled(components, common.RELAYER) {
		rly, err = relayer.New(cliCtx.Context, c.Relayer)
		if err != nil {
			log.Fatal(err)
		}
		go rly.Start(cliCtx.Context)
	}

	if componentEnabled(components, common.BRIDGE_RPC) {
		var status rpc.RelayerStatuser
		if rly != nil {
			status = rly
		} else {
			// relayer runs elsewhere: serve its persisted cursor
			status = relayer.NewFileStatuser(c.Relayer.CursorPath)
		}
		server, err := createRPC(c, status)
		if err != nil {
			log.Fatal(err)
		}
		go func() {
			if err := server.Start(); err != nil {
				log.Fatal(err)
			}
		}()
	}

	waitSignal(nil)

	return nil
}

func componentEnabled(components []string, component string) bool {
	for _, c := range components {
		if c == component {
			return true
		}
	}
	return false
}

func createRPC(c *config.Config, status rpc.RelayerStatuser) (*jRPC.Server, error) {
	logger := log.WithFields("module", common.BRIDGE_RPC)
	audit, err := store.NewAuditStore(c.Relayer.AuditDBPath)
	if err != nil {
		return nil, err
	}
	services := []jRPC.Service{
		{
			Name: rpc.BRIDGE,
			Service: rpc.NewBridgeEndpoints(
				logger,
				c.RPC.ReadTimeout.Duration,
				ledgerclient.NewClient(c.Relayer.LedgerURL),
				audit,
				status,
			),
		},
	}

	return jRPC.NewServer(c.RPC, services, jRPC.WithLogger(logger.GetSugaredLogger())), nil
}

func waitSignal(cancelFuncs []context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)

	for sig := range signals {
		switch sig {
		case os.Interrupt, os.Kill:
			log.Info("terminating application gracefully...")

			exitStatus := 0
			for _, cancel := range cancelFuncs {
				cancel()
			}
			os.Exit(exitStatus)
		}
	}
}
