package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"studyrag/internal/domain"
	"studyrag/internal/usecase"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive study session",
	Long: `Ask questions one after another. The bundle and models are loaded once.

Type 'exit', 'quit' or 'bye' to leave and 'clear' to show the banner again.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of passages per answer (default from config)")
}

func runChat(cmd *cobra.Command, args []string) error {
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

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d text chunks (model %s)\n", res.Bundle.Len(), res.Bundle.ModelName())

	answerUC := usecase.NewAnswerUseCase(res.Retriever, completer, logger)
	k := topK(cmd, chatTopK, cfg)
	return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, q string) (*domain.Answer, error) {
		return answerUC.Ask(ctx, q, k)
	})
}

const rule = "============================================================"

func printBanner(out io.Writer, tips bool) {
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "Study Chatbot - Ready to help!")
	fmt.Fprintln(out, rule)
	if tips {
		fmt.Fprintln(out, "\nTips:")
		fmt.Fprintln(out, "  - Ask questions about topics from your textbooks")
		fmt.Fprintln(out, "  - Type 'exit' or 'quit' to end the session")
		fmt.Fprintln(out, "  - Type 'clear' to see this message again")
		fmt.Fprintln(out, "\n"+rule)
	}
	fmt.Fprintln(out)
}

// chatLoop reads one question per line until an exit word, end of input or
// cancellation of ctx. A failed question is reported and the loop goes on.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, ask func(context.Context, string) (*domain.Answer, error)) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	printBanner(out, true)
	for {
		fmt.Fprint(out, "Your question: ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n\nExiting... Good luck with your studies!")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-scanErr:
				return err
			default:
				return nil
			}
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		switch strings.ToLower(query) {
		case "exit", "quit", "bye":
			fmt.Fprintln(out, "\nThanks for studying! Good luck with your exams!")
			return nil
		case "clear":
			fmt.Fprintln(out)
			printBanner(out, false)
			continue
		}

		fmt.Fprintln(out, "\nThinking...")
		answer, err := ask(ctx, query)
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n\n", err)
			continue
		}
		fmt.Fprintf(out, "\nAnswer:\n%s\n\n", answer.Text)
		fmt.Fprintln(out, strings.Repeat("-", len(rule))+"\n")
	}
}
