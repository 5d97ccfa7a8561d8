package main

import (
	"os"

	"github.com/energy-monitor/server/internal/cli"
	logx "github.com/energy-monitor/server/pkg/logger"
)

func main() {
	logx.Init()
	if err := cli.NewRootCommand().Execute(); err != nil {
		logx.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
