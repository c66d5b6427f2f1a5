package cmd

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/conversion"
)

var invokeFormat string

var invokeCmd = &cobra.Command{
	Use:   "invoke PROMPT...",
	Short: "Send a prompt to the invocation endpoint",
	Long: `Send a prompt to the /invocations endpoint, the entry point used when the
service is deployed behind an agent runtime. The team coordinator answers.

Examples:
  twinbridge invoke "Summarize the sprint"
  twinbridge --base-url https://agent.example.com invoke --format json "Status?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := conversion.ParseFormat(invokeFormat)
		if err != nil {
			return err
		}
		return runInvoke(cmd.Context(), cmd.OutOrStdout(), newClient(), strings.Join(args, " "), format)
	},
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&invokeFormat, "format", "f", "text", "Output format: text, html or json")
}

func runInvoke(ctx context.Context, w io.Writer, c *client.Client, prompt string, format conversion.Format) error {
	reply, err := c.Invoke(ctx, prompt)
	if err != nil {
		return err
	}
	return printReply(w, reply, format)
}
