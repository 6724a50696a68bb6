// Package cmd wires the mcpml command line interface.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/a5c-ai/mcpml/internal/agent"
	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/logging"
	"github.com/a5c-ai/mcpml/internal/registry"
)

type runtime struct {
	build      BuildInfo
	configPath string

	cfg *config.Config
	reg *registry.Registry
}

// load resolves and loads the config, then compiles the tool registry.
// Called once per invocation, by the commands that need a config.
func (rt *runtime) load(ctx context.Context) error {
	if rt.cfg != nil {
		return nil
	}

	source := rt.configPath
	if source == "" {
		source = "."
	}
	cfg, err := config.Load(ctx, source)
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, cfg.Settings.LogLevel)

	reg, err := registry.New(cfg)
	if err != nil {
		return err
	}

	hasAgents := false
	for _, t := range cfg.Tools {
		if t.IsAgent() {
			hasAgents = true
			break
		}
	}
	if hasAgents {
		if agent.HasCredentials() {
			svc, err := agent.New(cfg, reg)
			if err != nil {
				return err
			}
			reg.SetAgentRunner(svc)
		} else {
			slog.Warn("no model credentials found, agent tools will fail when called")
		}
	}

	rt.cfg = cfg
	rt.reg = reg
	return nil
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo) *cobra.Command {
	rt := &runtime{build: normalizeBuildInfo(build)}

	rootCmd := &cobra.Command{
		Use:           "mcpml",
		Short:         "Serve YAML-declared tools and agents over MCP.",
		Long:          "mcpml reads an mcpml.yaml, compiles its function and agent tools, and serves them over the Model Context Protocol.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare invocation starts the server, same as `mcpml run`.
			return runServe(cmd, rt)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	rootCmd.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "",
		"Path, directory, or git URL of the mcpml.yaml to load")

	rootCmd.AddCommand(newRunCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newServersCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}
