package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chadiek/gdd-voice/internal/config"
	"github.com/chadiek/gdd-voice/internal/gdd"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "gdd-voice",
		Short:         "Voice assistant that walks game designers through a design document",
		SilenceUsage:  true,
		SilenceErrors: true,
		// bare invocation serves
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newQuestionsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr, level string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddress = addr
			}
			if level != "" {
				cfg.LogLevel = level
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDRESS)")
	cmd.Flags().StringVar(&level, "log-level", "", "log level (overrides LOG_LEVEL)")
	return cmd
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Print the design document questionnaire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			qs, err := gdd.Questions()
			if err != nil {
				return err
			}
			for i, q := range qs {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, q)
			}
			return nil
		},
	}
}
