package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/usecase"
)

var (
	askText string
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the textbook bundle",
	Long: `Retrieve the nearest passages and ask the configured LLM to answer from them.

Examples:
  studyrag ask -q "explain photosynthesis"
  studyrag ask -q "what causes tides" -k 5`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages (default from config)")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	shared := sharedResources(cfg, GetRootDir(), logger)
	defer shared.Close()

	res, release, err := shared.Acquire(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	completer, err := newCompleter(cfg)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	answerUC := usecase.NewAnswerUseCase(res.Retriever, completer, logger)
	answer, err := answerUC.Ask(cmd.Context(), askText, topK(cmd, askTopK, cfg))
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	fmt.Printf("Answer:\n%s\n\n", answer.Text)
	fmt.Printf("Sources:\n")
	for i, s := range answer.Sources {
		fmt.Printf("  %d. chunk #%d (distance: %.4f)\n", i+1, s.Chunk.Index, s.Distance)
	}
	return nil
}
