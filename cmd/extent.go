package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/model"
	"github.com/sells-group/spatial-catalog/internal/shapefile"
	"github.com/sells-group/spatial-catalog/internal/spatial"
)

var extentCmd = &cobra.Command{
	Use:   "extent",
	Short: "Inspect and maintain package extents",
}

var extentGetCmd = &cobra.Command{
	Use:   "get <package>",
	Short: "Print the stored extent of a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runExtentGet(ctx, env, cmd.OutOrStdout(), args[0])
		})
	},
}

var extentSetFile string

var extentSetCmd = &cobra.Command{
	Use:   "set <package> [geojson]",
	Short: "Store a GeoJSON geometry as the extent of a package",
	Long:  "Stores the geometry given as an argument, or read from --file (\"-\" for stdin), as the package extent. The package's spatial extra is left untouched.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := geoJSONInput(cmd.InOrStdin(), args[1:], extentSetFile)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runExtentSet(ctx, env, args[0], value)
		})
	},
}

var extentDeleteCmd = &cobra.Command{
	Use:   "delete <package>",
	Short: "Remove the stored extent of a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runExtentDelete(ctx, env, args[0])
		})
	},
}

var (
	extentQueryBBox string
	extentQueryCRS  string
)

var extentQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List packages whose extent intersects a bounding box",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			return runExtentQuery(ctx, env, cmd.OutOrStdout(), extentQueryBBox, extentQueryCRS)
		})
	},
}

var (
	importShpKey  string
	importShpFull bool
)

var extentImportShpCmd = &cobra.Command{
	Use:   "import-shp <file.shp>",
	Short: "Load package extents from a shapefile",
	Long:  "Reads every shape in the file, matches its --key attribute against package names, and stores the shape's bounding box (or the full shape with --full) as that package's extent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			res, err := runImportShapefile(ctx, env, args[0], importShpKey, importShpFull)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %d extents (%d unmatched, %d invalid, %d skipped)\n",
				res.Saved, res.Unmatched, res.Invalid, res.Skipped)
			return nil
		})
	},
}

var extentReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild every extent from the packages' spatial extras",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCatalog(cmd, func(ctx context.Context, env *catalogEnv) error {
			res, err := runReindex(ctx, env, env.Config.Spatial.ReindexConcurrency)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, cleared %d, failed %d\n",
				res.Indexed, res.Cleared, res.Failed)
			return nil
		})
	},
}

// withCatalog opens the catalog for a CLI subcommand and closes it after fn.
func withCatalog(cmd *cobra.Command, fn func(context.Context, *catalogEnv) error) error {
	ctx := cmd.Context()
	env, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

// resolvePackageID maps a package name or ID to its ID.
func resolvePackageID(ctx context.Context, env *catalogEnv, idOrName string) (string, error) {
	pkg, err := env.Catalog.GetPackage(ctx, idOrName)
	if err != nil {
		return "", eris.Wrapf(err, "package %s", idOrName)
	}
	return pkg.ID, nil
}

type extentOutput struct {
	PackageID string          `json:"package_id"`
	Bounds    spatial.BBox    `json:"bounds"`
	UpdatedAt time.Time       `json:"updated_at"`
	Geometry  json.RawMessage `json:"geometry"`
}

func runExtentGet(ctx context.Context, env *catalogEnv, out io.Writer, idOrName string) error {
	id, err := resolvePackageID(ctx, env, idOrName)
	if err != nil {
		return err
	}
	ext, err := env.Extents.GetExtent(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "extent get %s", idOrName)
	}
	gj, err := spatial.MarshalGeoJSON(ext.Geometry)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(extentOutput{
		PackageID: ext.PackageID,
		Bounds:    ext.Bounds,
		UpdatedAt: ext.UpdatedAt,
		Geometry:  json.RawMessage(gj),
	})
}

// geoJSONInput picks the geometry from the positional argument or --file.
func geoJSONInput(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) > 0 && file != "":
		return "", eris.New("extent set: pass the geometry as an argument or --file, not both")
	case len(args) > 0:
		return args[0], nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		return string(data), eris.Wrap(err, "extent set: read stdin")
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), eris.Wrapf(err, "extent set: read %s", file)
	default:
		return "", eris.New("extent set: a GeoJSON geometry is required")
	}
}

func runExtentSet(ctx context.Context, env *catalogEnv, idOrName, value string) error {
	id, err := resolvePackageID(ctx, env, idOrName)
	if err != nil {
		return err
	}
	g, err := spatial.ParseGeoJSON(strings.TrimSpace(value), env.Config.Spatial.SRID)
	if err != nil {
		return eris.Wrap(err, "extent set")
	}
	if err := env.Extents.SaveExtent(ctx, id, g); err != nil {
		return err
	}
	zap.L().Info("extent saved", zap.String("package_id", id))
	return nil
}

func runExtentDelete(ctx context.Context, env *catalogEnv, idOrName string) error {
	id, err := resolvePackageID(ctx, env, idOrName)
	if err != nil {
		return err
	}
	if err := env.Extents.DeleteExtent(ctx, id); err != nil {
		return err
	}
	zap.L().Info("extent deleted", zap.String("package_id", id))
	return nil
}

func runExtentQuery(ctx context.Context, env *catalogEnv, out io.Writer, bbox, crs string) error {
	box, err := spatial.ValidateBBox(bbox)
	if err != nil {
		return err
	}
	srid, err := spatial.ParseCRS(crs, env.Config.Spatial.SRID)
	if err != nil {
		return err
	}
	ids, err := env.Extents.QueryBBox(ctx, *box, srid)
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id)
	}
	zap.L().Debug("extent query", zap.String("bbox", box.String()), zap.Int("matches", len(ids)))
	return nil
}

type shapefileImport struct {
	Saved     int64
	Unmatched int
	Invalid   int
	Skipped   int
}

func runImportShapefile(ctx context.Context, env *catalogEnv, path, key string, full bool) (*shapefileImport, error) {
	if key == "" {
		return nil, eris.New("extent import-shp: --key is required")
	}
	srid := env.Config.Spatial.SRID
	read, err := shapefile.Read(path, key, srid)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "import-shp"), zap.String("path", path))
	res := &shapefileImport{Skipped: read.Skipped}

	byID := make(map[string]int)
	var extents []spatial.Extent
	for _, rec := range read.Records {
		pkg, err := env.Catalog.GetPackage(ctx, rec.Key)
		if errors.Is(err, catalog.ErrNotFound) {
			log.Warn("no package for shape", zap.String("key", rec.Key))
			res.Unmatched++
			continue
		}
		if err != nil {
			return nil, err
		}

		ext := spatial.Extent{PackageID: pkg.ID, Bounds: rec.Bounds, Geometry: rec.Bounds.Polygon(srid)}
		if full && rec.Geometry != nil {
			ext.Geometry = rec.Geometry
		}
		if err := spatial.ValidateGeometry(ext.Geometry); err != nil {
			log.Warn("invalid shape", zap.String("key", rec.Key), zap.Error(err))
			res.Invalid++
			continue
		}

		if i, dup := byID[pkg.ID]; dup {
			log.Warn("duplicate key, keeping last shape", zap.String("key", rec.Key))
			extents[i] = ext
			continue
		}
		byID[pkg.ID] = len(extents)
		extents = append(extents, ext)
	}

	if len(extents) > 0 {
		n, err := env.Extents.BulkSaveExtents(ctx, extents)
		if err != nil {
			return nil, err
		}
		res.Saved = n
	}
	log.Info("shapefile imported",
		zap.Int64("saved", res.Saved),
		zap.Int("unmatched", res.Unmatched),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

type reindexResult struct {
	Indexed int64
	Cleared int64
	Failed  int64
}

const reindexPageSize = 100

// runReindex re-derives the extent of every active package from its spatial
// extra. Packages without one have their extent removed; unparseable values
// are logged and counted.
func runReindex(ctx context.Context, env *catalogEnv, concurrency int) (*reindexResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	log := zap.L().With(zap.String("component", "reindex"))
	srid := env.Config.Spatial.SRID

	var indexed, cleared, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for offset := 0; ; offset += reindexPageSize {
		pkgs, err := env.Catalog.ListPackages(gctx, reindexPageSize, offset)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, eris.Wrap(werr, "reindex")
			}
			return nil, err
		}
		for i := range pkgs {
			pkg := pkgs[i]
			g.Go(func() error {
				value, ok := pkg.Extra(model.SpatialKey)
				if !ok {
					if err := env.Extents.DeleteExtent(gctx, pkg.ID); err != nil {
						return err
					}
					cleared.Add(1)
					return nil
				}
				geometry, err := spatial.ParseGeoJSON(value, srid)
				if err != nil {
					log.Warn("invalid spatial extra", zap.String("package", pkg.Name), zap.Error(err))
					failed.Add(1)
					return nil
				}
				if err := env.Extents.SaveExtent(gctx, pkg.ID, geometry); err != nil {
					return err
				}
				indexed.Add(1)
				return nil
			})
		}
		if len(pkgs) < reindexPageSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "reindex")
	}
	res := &reindexResult{Indexed: indexed.Load(), Cleared: cleared.Load(), Failed: failed.Load()}
	log.Info("reindex complete",
		zap.Int64("indexed", res.Indexed),
		zap.Int64("cleared", res.Cleared),
		zap.Int64("failed", res.Failed),
	)
	return res, nil
}

func init() {
	extentSetCmd.Flags().StringVar(&extentSetFile, "file", "", "read the GeoJSON geometry from a file (\"-\" for stdin)")
	extentQueryCmd.Flags().StringVar(&extentQueryBBox, "bbox", "", "bounding box minx,miny,maxx,maxy")
	extentQueryCmd.Flags().StringVar(&extentQueryCRS, "crs", "", "CRS of the bounding box, e.g. EPSG:4326 (default store SRID)")
	_ = extentQueryCmd.MarkFlagRequired("bbox")
	extentImportShpCmd.Flags().StringVar(&importShpKey, "key", "", "attribute holding the package name")
	extentImportShpCmd.Flags().BoolVar(&importShpFull, "full", false, "store the full shape instead of its bounding box")
	_ = extentImportShpCmd.MarkFlagRequired("key")

	extentCmd.AddCommand(extentGetCmd, extentSetCmd, extentDeleteCmd, extentQueryCmd, extentImportShpCmd, extentReindexCmd)
	rootCmd.AddCommand(extentCmd)
}
