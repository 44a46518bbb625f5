// Package main is the entry point for the vigil correlation engine.
package main

import (
	"context"
	"fmt"
	"os"

	"vigil/bootstrap"
	"vigil/cmd"

	"github.com/spf13/cobra"
)

func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "vigil",
		Short: "Security event correlation engine",
		RunE: func(*cobra.Command, []string) error {
			return run()
		},
	}
	root.AddCommand(cmd.NewRulesCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
