package main

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/javelin-dev/javelin/internal/config"
	"github.com/javelin-dev/javelin/internal/deploy"
	"github.com/javelin-dev/javelin/pkg/api"
)

// Resolve configuration honoring the persistent --config flag
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	configureSessionLog(cfg.Log.File)
	return cfg, nil
}

// Deploy a repository
func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Fetch, launch and monitor a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			spec := api.DeploymentSpec{
				RepoURL: lo.Must(cmd.Flags().GetString("repo-url")),
				Name:    lo.Must(cmd.Flags().GetString("repo-name")),
				Port:    cfg.Defaults.Port,
			}
			if cmd.Flags().Changed("branch") {
				spec.Branch = lo.Must(cmd.Flags().GetString("branch"))
			} else {
				spec.Branch = cfg.Defaults.Branch
			}
			if cmd.Flags().Changed("monitor") {
				spec.MonitorSeconds = lo.Must(cmd.Flags().GetInt("monitor"))
			} else {
				spec.MonitorSeconds = cfg.Defaults.MonitorSeconds
			}

			return deploy.New(cfg, spec).Run(cmd.Context())
		},
	}

	cmd.Flags().String("repo-url", "", "Repository URL (ssh or https)")
	cmd.Flags().String("repo-name", "", "Workspace directory name for the fetched source")
	cmd.Flags().String("branch", "main", "Branch to deploy")
	cmd.Flags().Int("monitor", 300, "Post-launch monitoring window in seconds")
	_ = cmd.MarkFlagRequired("repo-url")
	_ = cmd.MarkFlagRequired("repo-name")
	return cmd
}

// Validate the environment without deploying
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify tools and credentials without deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return deploy.New(cfg, api.DeploymentSpec{}).Checks(cmd.Context())
		},
	}
}
