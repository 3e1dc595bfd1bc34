package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/banktalk/internal/cli"
	"github.com/Veraticus/banktalk/internal/model"
)

func resolveCmd() *cobra.Command {
	var (
		sets       []string
		asJSON     bool
		byCustomer bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [file|-]",
		Short: "Resolve a classification response to a render instruction",
		Long: `Read a classification response JSON document from a file or stdin and
print the component the rule table selects for it.

Examples:
  banktalk resolve response.json
  echo '{"moduleCode":"ACC","submoduleCode":"ACC_BALANCE","entities":{}}' | banktalk resolve -
  banktalk resolve response.json --set title="Your balance" --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}

			var resp model.ClassificationResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("invalid classification response: %w", err)
			}

			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var customer *model.Customer
			if byCustomer {
				if err := a.openBank(cmd.Context()); err != nil {
					return err
				}
				customer, err = a.bank.GetCustomer(cmd.Context(), a.cfg.User.ID)
				if err != nil {
					return fmt.Errorf("failed to load customer %s: %w", a.cfg.User.ID, err)
				}
			}

			res := a.resolver.Resolve(&resp, customer, overrides)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatResolution(res))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "configuration override key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	cmd.Flags().BoolVar(&byCustomer, "customer", false, "check account numbers against the configured customer")
	return cmd
}

// parseOverrides turns key=value pairs into a config map. Values that parse
// as JSON keep their JSON type; anything else is a string.
func parseOverrides(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}
