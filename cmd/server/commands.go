package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/ap-engine/api"
	"github.com/warp/ap-engine/ingestion"
)

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background re-matching and monitoring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			a.workflow.Start()
			a.monitor.Start()

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:      api.NewRouter(a.handler(), a.cfg.Server.CORSOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.WithField("port", a.cfg.Server.Port).Info("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				a.monitor.Stop()
				a.workflow.Stop()
				return fmt.Errorf("server failed: %w", err)
			}

			a.log.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				a.log.WithError(err).Error("server forced to shutdown")
			}
			a.orch.Wait()
			a.monitor.Stop()
			a.workflow.Stop()
			a.log.Info("server stopped")
			return nil
		},
	}
}

func ingestCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Ingest and match documents, then print the job summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			files := make([]ingestion.File, 0, len(args))
			for _, p := range args {
				content, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				files = append(files, ingestion.File{Name: filepath.Base(p), Content: content})
			}

			job, err := a.orch.CreateJob(ctx, len(files))
			if err != nil {
				return err
			}
			summary, err := a.orch.Run(ctx, job.ID, files)
			if summary != nil {
				printJSON(cmd, summary)
			}
			return err
		},
	}
}

func rematchCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rematch <invoice-row-id>",
		Short: "Re-run matching for one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid invoice id %q", args[0])
			}
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			inv, err := a.workflow.RematchNow(cmd.Context(), "cli", id)
			if err != nil {
				return err
			}
			printJSON(cmd, inv)
			return nil
		},
	}
}

func monitorCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run one monitoring cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.monitor.RunOnce(cmd.Context())
			printJSON(cmd, res)
			return err
		},
	}
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
