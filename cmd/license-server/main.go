// Command license-server runs the license validation, telemetry ingest,
// and admin dashboard HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"licensegate/internal/app"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}
