package main

import (
	"github.com/kasetlab/agrirag/internal/server"
	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
