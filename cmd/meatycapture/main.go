package main

import (
	"context"
	"os"

	"meatycapture/internal/bootstrap"
	"meatycapture/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The only place a startup error turns into process termination.
	bootstrap.Main(ctx, bootstrap.New(), bootstrap.ExitOnFailure(logger.NewConsoleLogger(logger.ErrorLevel), os.Exit))
}
