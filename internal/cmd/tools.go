package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/errs"
)

var (
	toolsListFormat string
	toolRunArgs     []string
)

func newToolsCmd(rt *runtime) *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and run the configured tools",
		Args:  cobra.ArbitraryArgs,
		// Tool names are not known until the config is loaded, so the
		// `tools <name> run [json-args]` form is routed here instead of
		// through per-tool subcommands.
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) >= 2 && args[1] == "run" {
				var jsonArgs string
				if len(args) > 2 {
					jsonArgs = args[2]
				}
				return runTool(cmd, rt, args[0], jsonArgs)
			}
			return cmd.Help()
		},
	}
	toolsCmd.PersistentFlags().StringArrayVar(&toolRunArgs, "arg", nil,
		"Tool argument as key=value, repeatable")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.load(cmd.Context()); err != nil {
				return err
			}
			return listTools(rt, toolsListFormat)
		},
	}
	listCmd.Flags().StringVarP(&toolsListFormat, "format", "f", "table",
		"Output format: table, json, or yaml")

	runCmd := &cobra.Command{
		Use:   "run <tool> [json-args]",
		Short: "Run a tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jsonArgs string
			if len(args) == 2 {
				jsonArgs = args[1]
			}
			return runTool(cmd, rt, args[0], jsonArgs)
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema <tool>",
		Short: "Print the input schema of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.load(cmd.Context()); err != nil {
				return err
			}
			tool, ok := rt.cfg.Tool(args[0])
			if !ok {
				return errs.Error{Reason: fmt.Sprintf("Unknown tool %q.", args[0])}
			}
			properties, required := rt.reg.InputSchema(tool)
			if properties == nil {
				properties = map[string]any{}
			}
			schema := map[string]any{
				"type":       "object",
				"properties": properties,
			}
			if len(required) > 0 {
				schema["required"] = required
			}
			out, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return errs.Wrap(err, "Could not encode the schema.")
			}
			fmt.Println(string(out))
			return nil
		},
	}

	toolsCmd.AddCommand(listCmd, runCmd, schemaCmd)
	return toolsCmd
}

func runTool(cmd *cobra.Command, rt *runtime, name, jsonArgs string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.load(ctx); err != nil {
		return err
	}

	tool, ok := rt.cfg.Tool(name)
	if !ok {
		return errs.Error{Reason: fmt.Sprintf("Unknown tool %q.", name)}
	}

	callArgs := map[string]any{}
	if jsonArgs != "" {
		if err := json.Unmarshal([]byte(jsonArgs), &callArgs); err != nil {
			return errs.Wrap(err, "Arguments must be a JSON object.")
		}
	}
	for _, pair := range toolRunArgs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errs.Error{Reason: fmt.Sprintf("Invalid --arg %q; expected key=value.", pair)}
		}
		callArgs[k] = coerceArg(tool, k, v)
	}

	result, err := rt.reg.Call(ctx, name, callArgs)
	if err != nil {
		return err
	}
	return printResult(result)
}

type toolListing struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

func listTools(rt *runtime, format string) error {
	listings := make([]toolListing, 0, len(rt.cfg.Tools))
	for _, t := range rt.cfg.Tools {
		listings = append(listings, toolListing{
			Name:        t.Name,
			Type:        t.Type,
			Description: t.Description,
		})
	}

	switch format {
	case "table":
		table := tablewriter.NewWriter(os.Stdout)
		table.Options(
			tablewriter.WithHeader([]string{"Name", "Type", "Description"}),
			tablewriter.WithAlignment(tw.MakeAlign(3, tw.AlignLeft)),
		)
		for _, l := range listings {
			if err := table.Append([]string{l.Name, l.Type, l.Description}); err != nil {
				return errs.Wrap(err, "Could not render the tool table.")
			}
		}
		if err := table.Render(); err != nil {
			return errs.Wrap(err, "Could not render the tool table.")
		}
		return nil
	case "json":
		out, err := json.MarshalIndent(listings, "", "  ")
		if err != nil {
			return errs.Wrap(err, "Could not encode the tool list.")
		}
		fmt.Println(string(out))
		return nil
	case "yaml":
		out, err := yaml.Marshal(listings)
		if err != nil {
			return errs.Wrap(err, "Could not encode the tool list.")
		}
		fmt.Print(string(out))
		return nil
	default:
		return errs.Error{Reason: fmt.Sprintf("Unknown format %q; supported formats are: table, json, yaml.", format)}
	}
}

// coerceArg converts a key=value string into the declared parameter type.
// Values that do not parse stay strings, the registry surfaces type errors.
func coerceArg(tool config.Tool, key, value string) any {
	var typ string
	for _, p := range tool.Parameters {
		if p.Name == key {
			typ = p.Type
			break
		}
	}
	switch typ {
	case "integer":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case "array", "object":
		var v any
		if err := json.Unmarshal([]byte(value), &v); err == nil {
			return v
		}
	}
	return value
}

func printResult(result any) error {
	switch v := result.(type) {
	case string:
		fmt.Println(v)
		return nil
	case nil:
		return nil
	default:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errs.Wrap(err, "Could not encode the result.")
		}
		fmt.Println(string(out))
		return nil
	}
}
