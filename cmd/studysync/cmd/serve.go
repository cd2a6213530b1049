package cmd

import (
	"context"
	"log"

	"github.com/nfrund/studysync/internal/app"
	"github.com/nfrund/studysync/internal/config"
	"github.com/nfrund/studysync/internal/logging"
	"github.com/nfrund/studysync/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collaboration server",
	Run: func(cmd *cobra.Command, args []string) {
		logging.New()
		cfg := config.New()

		deps, err := app.New(context.Background(), cfg)
		if err != nil {
			log.Fatalf("failed to wire dependencies: %v", err)
		}

		s := server.New(deps)
		s.RegisterRoutes()
		s.Start(cfg.HTTPAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
