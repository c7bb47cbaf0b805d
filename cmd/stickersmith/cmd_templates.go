package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/stickersmith/internal/catalog"
	"github.com/user/stickersmith/internal/types"
)

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesValidateCmd, templatesInitCmd)
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the template catalog",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		cat, err := catalog.Load(cfg.TemplatesPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMOJI\tLOCATOR")
		for _, tpl := range cat.Templates() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				tpl.ID,
				tpl.DisplayName,
				tpl.EmojiGlyph,
				tpl.SourceImageLocator,
			)
		}
		return w.Flush()
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the template catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		data, err := os.ReadFile(cfg.TemplatesPath)
		if err != nil {
			return fmt.Errorf("read template catalog: %w", err)
		}
		var templates []types.Template
		if err := json.Unmarshal(data, &templates); err != nil {
			return fmt.Errorf("parse template catalog: %w", err)
		}

		violations := catalog.Validate(templates)
		if len(violations) == 0 {
			fmt.Fprintf(os.Stdout, "Catalog OK (%d templates).\n", len(templates))
			return nil
		}
		for _, v := range violations {
			fmt.Fprintln(os.Stdout, v)
		}
		return fmt.Errorf("%d violations in %s", len(violations), cfg.TemplatesPath)
	},
}

var templatesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter template catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := catalog.WriteStarter(cfg.TemplatesPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Starter catalog written to %s. Edit the locators to point at your template images.\n", cfg.TemplatesPath)
		return nil
	},
}
