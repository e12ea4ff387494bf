package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cwstate/internal/registry"
)

func runChains(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	for _, p := range registry.Default().Profiles() {
		chainID := p.ChainID
		if chainID == "" {
			chainID = "-"
		}
		if _, err := fmt.Fprintf(out, "%-10s %-16s %-12s %s\n", p.Prefix, p.Name, chainID, strings.Join(p.Endpoints, ", ")); err != nil {
			return err
		}
	}
	return nil
}
