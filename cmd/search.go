package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spatial-catalog/internal/model"
)

var (
	searchBBox  string
	searchRows  int
	searchStart int
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search packages by text and bounding box",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := model.SearchParams{
			Q:     strings.Join(args, " "),
			Rows:  searchRows,
			Start: searchStart,
		}
		if searchBBox != "" {
			params.Extras = map[string]string{model.BBoxExtra: searchBBox}
		}
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runSearch(ctx, env, cmd.OutOrStdout(), params)
		})
	},
}

func runSearch(ctx context.Context, env *catalogEnv, out io.Writer, params model.SearchParams) error {
	res, err := env.Service.Search(ctx, params)
	if err != nil {
		return err
	}
	formatSearchResult(out, res)
	return nil
}

// formatSearchResult writes a tabular listing of the matches to out.
func formatSearchResult(out io.Writer, res *model.SearchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTITLE\tID")
	_, _ = fmt.Fprintln(w, "----\t-----\t--")
	for _, p := range res.Results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, truncate(p.Title, 50), p.ID)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d of %d packages\n", len(res.Results), res.Count)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	searchCmd.Flags().StringVar(&searchBBox, "bbox", "", "only packages intersecting minx,miny,maxx,maxy")
	searchCmd.Flags().IntVar(&searchRows, "rows", model.DefaultSearchRows, "results per page")
	searchCmd.Flags().IntVar(&searchStart, "start", 0, "offset of the first result")
	rootCmd.AddCommand(searchCmd)
}
