package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/spf13/cobra"
)

func wantsJSON(cmd *cobra.Command) bool {
	outputJSON, _ := cmd.Flags().GetBool("output")
	return outputJSON
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func printDocuments(w io.Writer, docs []*domain.Document) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCHUNKS\tERROR")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.OriginalName, d.Status, d.ChunkCount, d.Error)
	}
	_ = tw.Flush()
}

func printAnswer(w io.Writer, res *handlers.AskResponse) {
	fmt.Fprintln(w, res.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Confidence: %.2f (%d ms)\n", res.Confidence, res.ProcessingTime)
	if len(res.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "Sources:")
	for i, s := range res.Sources {
		fmt.Fprintf(w, "  %d. %s #%d (similarity %.3f)\n", i+1, s.DocumentName, s.ChunkIndex, s.Similarity)
		fmt.Fprintf(w, "     %s\n", excerpt(s.Content, 120))
	}
}

func printStats(w io.Writer, s *domain.Stats) {
	fmt.Fprintf(w, "Documents:   %d\n", s.TotalDocuments)
	fmt.Fprintf(w, "Chunks:      %d\n", s.TotalChunks)
	fmt.Fprintf(w, "Per doc:     %.1f\n", s.AverageChunksPerDocument)
	fmt.Fprintf(w, "Embeddings:  %d\n", s.TotalEmbeddings)
}

// excerpt flattens whitespace and cuts s to at most n runes
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
