package cmds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/noise"
)

func newLabelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Label semantic search results as noise",
		Long: `labels works on the cached semantic results of the last search. Each
result is split into tokens; toggle tokens that are noise, then compute the
semantic noise ratio: labelled results / all results * 100.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print semantic results with token indexes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, closeFn, err := a.openState()
				if err != nil {
					return err
				}
				defer closeFn()

				results, err := st.Results(domain.SourceSemantic)
				if err != nil {
					return err
				}
				labels, err := st.Labels()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No semantic results stored yet. Run `noise search <query>` first."))
					return nil
				}
				for r, text := range results {
					fmt.Fprintf(out, "%s %s\n", headerStyle.Render(fmt.Sprintf("Record %d", r+1)),
						mutedStyle.Render(plural(len(labels[r]), "labelled token")))
					fmt.Fprintln(out, renderTokens(noise.Tokenize(text), labels, r))
					fmt.Fprintln(out)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle <record> <token>",
			Short: "Flip the noise label of one token",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				record, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid record %q: %w", args[0], err)
				}
				tokenIdx, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid token %q: %w", args[1], err)
				}

				st, closeFn, err := a.openState()
				if err != nil {
					return err
				}
				defer closeFn()

				results, err := st.Results(domain.SourceSemantic)
				if err != nil {
					return err
				}
				if record < 1 || record > len(results) {
					return fmt.Errorf("record %d out of range (1-%d): %w", record, len(results), domain.ErrNotFound)
				}
				r := record - 1
				tokens := noise.Tokenize(results[r])
				if tokenIdx < 0 || tokenIdx >= len(tokens) {
					return fmt.Errorf("token %d out of range (0-%d): %w", tokenIdx, len(tokens)-1, domain.ErrNotFound)
				}
				if noise.IsSpace(tokens[tokenIdx]) {
					return fmt.Errorf("token %d is whitespace: %w", tokenIdx, domain.ErrInvalidRequest)
				}

				labels, err := st.Labels()
				if err != nil {
					return err
				}
				on := labels.Toggle(r, tokenIdx)
				if err := st.SaveLabels(labels); err != nil {
					return err
				}

				state := "cleared"
				if on {
					state = "labelled as noise"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %d token %d %q %s.\n", record, tokenIdx, tokens[tokenIdx], state)
				return nil
			},
		},
		&cobra.Command{
			Use:   "ratio",
			Short: "Compute the semantic noise ratio",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, closeFn, err := a.openState()
				if err != nil {
					return err
				}
				defer closeFn()

				results, err := st.Results(domain.SourceSemantic)
				if err != nil {
					return err
				}
				labels, err := st.Labels()
				if err != nil {
					return err
				}

				total := len(results)
				body := fmt.Sprintf("%s\n%s of %s",
					titleStyle.Render(fmt.Sprintf("%.2f%%", labels.Ratio(total))),
					plural(labels.LabelledCount(total), "labelled result"),
					plural(total, "result"),
				)
				fmt.Fprintln(cmd.OutOrStdout(), statStyle.Render(body))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete stored semantic results and labels",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, closeFn, err := a.openState()
				if err != nil {
					return err
				}
				defer closeFn()

				if err := st.ClearNoiseData(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Semantic results and labels cleared.")
				return nil
			},
		},
	)

	return cmd
}

// renderTokens shows each word with its token index, noise tokens struck through
func renderTokens(tokens []string, labels noise.Labels, r int) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if noise.IsSpace(tok) {
			sb.WriteString(tok)
			continue
		}
		if labels.Has(r, i) {
			sb.WriteString(noiseStyle.Render(tok))
		} else {
			sb.WriteString(tok)
		}
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("[%d]", i)))
	}
	return sb.String()
}
