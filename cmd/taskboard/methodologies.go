package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"taskboard/internal/methodology"
)

func methodologiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "methodologies",
		Aliases: []string{"meth"},
		Short:   "Inspect the methodology catalog",
	}
	cmd.PersistentFlags().String("catalog", "", "catalog YAML (built-in when empty)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List methodologies and their stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			def := catalog.Default().ID
			for _, m := range catalog.List() {
				marker := ""
				if m.ID == def {
					marker = color.New(color.FgHiMagenta).Sprint(" [default]")
				}
				fmt.Printf("%s %s%s\n", color.New(color.Bold).Sprint(m.ID), m.DisplayName, marker)
				for _, s := range m.Stages {
					var flags []string
					if s.IsInitial {
						flags = append(flags, color.New(color.FgCyan).Sprint("initial"))
					}
					if s.IsFinal {
						flags = append(flags, color.New(color.FgGreen).Sprint("final"))
					}
					fmt.Printf("  %-16s %-18s %s\n", s.ID, s.Name, strings.Join(flags, " "))
				}
			}
			return nil
		},
	})

	gaps := &cobra.Command{
		Use:   "gaps",
		Short: "List statuses that fall back to the initial stage when switching",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			fromID, _ := cmd.Flags().GetString("from")
			toID, _ := cmd.Flags().GetString("to")
			from, err := catalog.Get(fromID)
			if err != nil {
				return err
			}
			to, err := catalog.Get(toID)
			if err != nil {
				return err
			}

			result := methodology.CoverageGaps(from, to, catalog.Buckets())
			if len(result) == 0 {
				fmt.Printf("%s every %s stage maps onto %s\n", color.New(color.FgGreen).Sprint("✓"), from.ID, to.ID)
				return nil
			}
			for _, g := range result {
				fmt.Printf("  %-16s -> %s\n", g.Status, color.New(color.FgYellow).Sprint(g.Fallback))
			}
			return nil
		},
	}
	gaps.Flags().String("from", "", "source methodology")
	gaps.Flags().String("to", "", "target methodology")
	_ = gaps.MarkFlagRequired("from")
	_ = gaps.MarkFlagRequired("to")
	cmd.AddCommand(gaps)

	return cmd
}

func loadCatalog(cmd *cobra.Command) (*methodology.Registry, error) {
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		path = cfg.CatalogPath
	}
	return methodology.Load(path)
}
