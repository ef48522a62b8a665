package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentarena.ai/internal/config"
	"agentarena.ai/internal/profiles"
)

func newProfilesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Print the personality profile catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cat, err := loadCatalogue(cfg.ProfilesFile)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), cat, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func loadCatalogue(path string) (*profiles.Catalogue, error) {
	cat := profiles.NewCatalogue()
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	if err := cat.LoadFile(path); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return cat, nil
}

func printProfiles(w io.Writer, cat *profiles.Catalogue, asJSON bool) error {
	all := cat.All()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tACTIONS/MIN\tIGNORE\tBEHAVIORS")
	for _, p := range all {
		fmt.Fprintf(tw, "%s\t%g-%g\t%.0f%%\t%s\n",
			p.Name,
			p.ActionFrequency.MinPerMinute, p.ActionFrequency.MaxPerMinute,
			p.ResponsePatterns.IgnoreRate*100,
			strings.Join(p.Behaviors, ","),
		)
	}
	return tw.Flush()
}
