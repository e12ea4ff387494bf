package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cwstate/internal/config"
	"cwstate/internal/cwkey"
	"cwstate/internal/fetcher"
	"cwstate/internal/lcd"
	"cwstate/internal/model"
	"cwstate/internal/registry"
	"cwstate/internal/resolver"
)

func runState(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg.Address = args[0]
	if err := registry.ValidateAddress(cfg.Address); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := lcd.NewClient(&http.Client{})
	res := resolver.New(resolver.Config{ProbeTimeout: cfg.ProbeTimeout}, registry.Default(), client, nil, logger)
	endpoint, err := res.Resolve(ctx, cfg.Address, cfg.LCD)
	if err != nil {
		return fmt.Errorf("resolve endpoint: %w", err)
	}

	f := fetcher.New(fetcher.Config{PageLimit: cfg.PageLimit, PageTimeout: cfg.PageTimeout}, client, nil, logger)
	snapshot, err := f.FetchState(ctx, endpoint.BaseURL, cfg.Address)
	if err != nil {
		return err
	}

	return printState(cmd.OutOrStdout(), endpoint, snapshot)
}

func printState(w io.Writer, endpoint model.ResolvedEndpoint, snapshot model.Snapshot) error {
	grouped := cwkey.Group(snapshot)

	if _, err := fmt.Fprintf(w, "# %d entries from %s (%s)\n", snapshot.Len(), endpoint.BaseURL, endpoint.Source); err != nil {
		return err
	}
	for _, item := range grouped.Items {
		if _, err := fmt.Fprintf(w, "%s = %s\n", item.Name, cwkey.Render(item.Value)); err != nil {
			return err
		}
	}
	for _, m := range grouped.Maps {
		if _, err := fmt.Fprintf(w, "%s (%d keys)\n", m.Name, len(m.Entries)); err != nil {
			return err
		}
		for _, e := range m.Entries {
			if _, err := fmt.Fprintf(w, "  [%s] = %s\n", cwkey.Render(e.Key), cwkey.Render(e.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}
