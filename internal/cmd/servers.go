package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	mmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/a5c-ai/mcpml/internal/errs"
	imcp "github.com/a5c-ai/mcpml/internal/mcp"
	"github.com/a5c-ai/mcpml/internal/present"
)

func newServersCmd(rt *runtime) *cobra.Command {
	serversCmd := &cobra.Command{
		Use:   "servers",
		Short: "Inspect the configured upstream MCP servers",
	}

	serversCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.load(cmd.Context()); err != nil {
				return err
			}
			return listServers(rt)
		},
	})

	serversCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List tools from the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.load(cmd.Context()); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.Settings.MCPTimeout)
			defer cancel()
			return listServerTools(ctx, rt)
		},
	})

	return serversCmd
}

func listServers(rt *runtime) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"Name", "Type", "Target", "Description"}),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
	)
	for _, s := range rt.cfg.MCPServers {
		typ := s.Type
		if typ == "" {
			typ = "stdio"
		}
		target := s.URL
		if target == "" {
			target = strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
		}
		if err := table.Append([]string{s.Name, typ, target, s.Description}); err != nil {
			return errs.Wrap(err, "Could not render the server table.")
		}
	}
	if err := table.Render(); err != nil {
		return errs.Wrap(err, "Could not render the server table.")
	}
	return nil
}

func listServerTools(ctx context.Context, rt *runtime) error {
	svc := imcp.New(rt.cfg.MCPServers, rt.cfg.Settings.MCPTimeout)
	servers, err := svc.Tools(ctx)
	if err != nil {
		return fmt.Errorf("servers tools: %w", err)
	}

	names := slices.Collect(maps.Keys(servers))
	slices.Sort(names)
	for _, sname := range names {
		tools := servers[sname]
		slices.SortFunc(tools, func(a, b mmcp.Tool) int { return strings.Compare(a.Name, b.Name) })
		for _, tool := range tools {
			_, _ = fmt.Fprint(os.Stdout, present.StdoutStyles().Comment.Render(sname+" > "))
			_, _ = fmt.Fprintln(os.Stdout, tool.Name)
		}
	}
	return nil
}
