package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/agentfilter"
	"github.com/inercia/twinbridge/internal/client"
)

var (
	agentsFilter string
	agentsJSON   bool
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the service is alive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPing(cmd.Context(), cmd.OutOrStdout(), newClient())
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents of the twin system",
	Long: `List the agents of the twin system.

--filter takes a CEL expression over id, name, role, expertise and memory:
  twinbridge agents --filter 'role.contains("Engineer")'
  twinbridge agents --filter '"Flutter" in expertise'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgents(cmd.Context(), cmd.OutOrStdout(), newClient(), agentsFilter, agentsJSON)
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(agentsCmd)

	agentsCmd.Flags().StringVar(&agentsFilter, "filter", "", "CEL expression selecting agents")
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Print agents as JSON")
}

func runPing(ctx context.Context, w io.Writer, c *client.Client) error {
	env, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✅ %s (%s)\n", env.Message, c.BaseURL())
	return nil
}

func runAgents(ctx context.Context, w io.Writer, c *client.Client, filter string, asJSON bool) error {
	var f *agentfilter.Filter
	if filter != "" {
		var err error
		if f, err = agentfilter.Compile(filter); err != nil {
			return err
		}
	}

	agents, err := c.ListAgents(ctx)
	if err != nil {
		return err
	}
	if agents, err = f.Apply(agents); err != nil {
		return err
	}

	if asJSON {
		return printJSON(w, nil, agents)
	}
	printAgents(w, agents)
	return nil
}
