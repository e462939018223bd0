package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/crmimport/internal/app"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main runs one import and exits with its exit code.
func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the import after the current chunk...", sig)
		cancel()
	}()

	// Get the path to the .env file from environment variables. Use ".env" as default if not set.
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := app.RunApplication(ctx, envFilePath, embeddedConfig)
	cancel()
	os.Exit(code)
}
