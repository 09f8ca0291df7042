package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/spatialext"
	"github.com/sells-group/spatial-catalog/internal/web"
)

var servePort int

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog API and dataset pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.initPlugins(ctx); err != nil {
			return err
		}

		handler, err := newHandler(env)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("plugins", env.Registry.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newHandler builds the web server with the extension assets resolvable
// from the paths the plugins appended to the config.
func newHandler(env *catalogEnv) (http.Handler, error) {
	srv, err := web.New(web.Options{
		Config:   env.Config,
		Service:  env.Service,
		Registry: env.Registry,
		Assets: map[string]fs.FS{
			spatialext.TemplatePath: spatialext.Templates(),
			spatialext.PublicPath:   spatialext.Public(),
		},
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("asset paths",
		zap.Strings("templates", config.SplitPaths(env.Config.Server.ExtraTemplatePaths)),
		zap.Strings("public", config.SplitPaths(env.Config.Server.ExtraPublicPaths)),
	)
	return srv.Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
