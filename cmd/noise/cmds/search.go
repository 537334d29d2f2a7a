package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/retrieval"
)

func newSearchCommand(a *app) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query all three retrieval sources and cache the results",
		Long: `search sends the query to the semantic, vector and graph sources
concurrently, stores every source's full result list for later labelling and
prints them. Queries are cut to 1000 characters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := a.openState()
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			query := retrieval.CapQuery(strings.Join(args, " "))

			if cached || query == "" {
				if query == "" {
					if query, err = st.Query(); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "%s %s\n\n", titleStyle.Render("query"), query)
				for _, title := range domain.SourceOrder {
					items, err := st.Results(title)
					if err != nil {
						return err
					}
					printResults(out, title, items)
				}
				return nil
			}

			if err := st.SaveQuery(query); err != nil {
				return err
			}

			fmt.Fprintf(out, "%s %s\n\n", titleStyle.Render("query"), query)
			for _, res := range a.aggregator().Search(cmd.Context(), query) {
				if err := st.SaveResults(res.SourceTitle, res.Items); err != nil {
					return err
				}
				printResults(out, res.SourceTitle, res.Items)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Print the stored results instead of searching again")
	return cmd
}

func printResults(w io.Writer, title domain.SourceTitle, items []string) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(string(title)), mutedStyle.Render(plural(len(items), "result")))
	if len(items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(none)"))
	} else {
		fmt.Fprintln(w, retrieval.JoinItems(items))
	}
	fmt.Fprintln(w)
}
