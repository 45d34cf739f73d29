package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ent0n29/surveypulse/internal/catalog"
)

type catalogDocument struct {
	Questions []catalog.Question `yaml:"questions"`
	ChoiceSet catalog.ChoiceSet  `yaml:"choice_set"`
}

// newCatalogCmd prints the effective catalog as YAML. The output is a valid
// CATALOG_FILE, so it doubles as a starting point for a custom one.
func newCatalogCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the question catalog and choice set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("file") {
				path = os.Getenv("CATALOG_FILE")
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(catalogDocument{Questions: cat.Questions(), ChoiceSet: cat.Choices()}); err != nil {
				return fmt.Errorf("encode catalog: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Catalog YAML file (default: CATALOG_FILE, else built-in)")
	return cmd
}
