package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/banktalk/internal/cli"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect resolution rule tables",
	}
	cmd.AddCommand(rulesListCmd(), rulesShowCmd(), rulesValidateCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered submodule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			table := a.resolver.Table()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Rule table %s", table.Version())))
			fmt.Fprintln(out, cli.FormatRules(table))
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d submodules", len(table.Pairs()))))
			return nil
		},
	}
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <module> <submodule>",
		Short: "Print the strategies of one submodule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			module := model.ModuleCode(strings.ToUpper(args[0]))
			sub := strings.ToUpper(args[1])
			cfg, ok := a.resolver.Table().Lookup(module, sub)
			if !ok {
				return fmt.Errorf("no rule for %s/%s", module, sub)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render rule: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(fmt.Sprintf("%s / %s", module, sub), strings.TrimRight(string(data), "\n")))
			return nil
		},
	}
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a rule table YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := rules.LoadFile(args[0])
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatError(err.Error()))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("%s is valid: version %s, %d submodules", args[0], table.Version(), len(table.Pairs()))))
			return nil
		},
	}
}
