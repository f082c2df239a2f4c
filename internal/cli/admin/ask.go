package admin

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	var (
		documentID string
		maxSources int
		noContext  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the uploaded documents",
		Long: `Answer a question from the indexed documents without going through the API.

Examples:
  docchatd ask "What is the refund policy?"
  docchatd ask --document 6f1c... --max-sources 3 "Who signed the contract?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := exitOnSignal()
			defer stop()

			a, err := newApp(ctx, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.loadIndex(ctx); err != nil {
				return err
			}

			question := strings.Join(args, " ")
			res, err := a.pipeline.Query(ctx, question, documentID, domain.QueryOptions{
				MaxSources:     maxSources,
				IncludeContext: !noContext,
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			out := handlers.QueryResultToResponse(res)
			if documentID != "" {
				conv, err := a.convs.Record(ctx, documentID, question, res.Answer)
				if err != nil {
					a.logger.Warn("failed to record conversation", zap.String("document_id", documentID), zap.Error(err))
				} else {
					out.ConversationID = conv.ID
				}
			}
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printAnswer(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Restrict retrieval to one document id")
	cmd.Flags().IntVarP(&maxSources, "max-sources", "n", 0, "Maximum chunks to retrieve (default 5)")
	cmd.Flags().BoolVar(&noContext, "no-context", false, "Answer without passing retrieved excerpts to the model")

	return cli.WithJSONOutput(cmd)
}
