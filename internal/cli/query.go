package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/domain"
	"studyrag/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the passages nearest to a question",
	Long: `Embed the question and list the nearest chunks by squared L2 distance.

Examples:
  studyrag query -q "what is osmosis"
  studyrag query -q "newton's laws" --top-k 5 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	shared := sharedResources(cfg, GetRootDir(), logger)
	defer shared.Close()

	res, release, err := shared.Acquire(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	retrieveUC := usecase.NewRetrieveUseCase(res.Retriever, logger)
	chunks, err := retrieveUC.Retrieve(cmd.Context(), queryText, topK(cmd, queryTopK, cfg))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	results := usecase.ToResults(chunks)

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for _, r := range results {
		fmt.Printf("%d. chunk #%d (distance: %.4f)\n", r.Rank, r.Index, r.Distance)
		fmt.Printf("   %s\n\n", domain.Preview(r.Text, 200))
	}
	return nil
}
