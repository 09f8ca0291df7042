package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spatial-catalog/internal/catalog"
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Manage catalog packages",
}

var packageImportCmd = &cobra.Command{
	Use:   "import <fixtures.yaml>",
	Short: "Create or update packages from a YAML fixture",
	Long:  "Upserts every package in the fixture by name. Packages go through the same plugin hooks as the API, so spatial extras are indexed on import.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runPackageImport(ctx, env, cmd.OutOrStdout(), args[0])
		})
	},
}

func runPackageImport(ctx context.Context, env *catalogEnv, out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "package import: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	res, err := env.Service.Import(ctx, f, env.Config.Spatial.ReindexConcurrency)
	if err != nil {
		return err
	}
	formatImportResult(out, res)
	if len(res.Failed) > 0 {
		return eris.Errorf("package import: %d packages failed", len(res.Failed))
	}
	return nil
}

func formatImportResult(out io.Writer, res *catalog.ImportResult) {
	_, _ = fmt.Fprintf(out, "created %d, updated %d, failed %d\n", res.Created, res.Updated, len(res.Failed))
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(out, "  %s: %v\n", f.Name, f.Err)
	}
}

func init() {
	packageCmd.AddCommand(packageImportCmd)
	rootCmd.AddCommand(packageCmd)
}
