package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	decl "github.com/hanpama/compdata/internal/decl"
	otel "github.com/hanpama/compdata/internal/otel"
	server "github.com/hanpama/compdata/internal/server"
	tree "github.com/hanpama/compdata/internal/tree"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve APP.yaml",
		Short: "Serve server-rendered pages with the data payload embedded",
		Long: `Serve the application over HTTP. Each request resolves the tree for the
request path and responds with an HTML document carrying the payload, or with
the snapshot itself when the query has format=json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context(), args[0])
		},
	}
	f := cmd.Flags()
	f.String("server.addr", "", "HTTP listen address (default: :8080)")
	f.Duration("server.timeout", 0, "per-request timeout (default: 10s)")
	f.Bool("server.pretty", false, "indent JSON responses")
	f.String("server.title", "", "document title (default: the app name)")
	f.StringSlice("server.cors", nil, "allowed CORS origins; repeatable")
	f.StringSlice("server.metadata_headers", nil, "HTTP headers forwarded to outgoing metadata; repeatable")
	f.String("otel.endpoint", "", "OTLP collector endpoint")
	f.String("otel.service", "", "OpenTelemetry service name (default: compdata)")
	return cmd
}

func (c *cli) serve(ctx context.Context, file string) error {
	app, err := c.loadApp(file)
	if err != nil {
		return err
	}
	h, err := c.newHandler(app)
	if err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(c.cfg.OTel.Endpoint, c.cfg.OTel.Service, c.bus)
	if err != nil {
		return errors.Wrap(err, "otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			c.log.WithError(err).Warn("otel shutdown")
		}
	}()

	srv := &http.Server{Addr: c.cfg.Server.Addr, Handler: h}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.log.WithField("addr", srv.Addr).Infof("compdata serving %s", app.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (c *cli) newHandler(app *decl.App) (*server.Handler, error) {
	title := c.cfg.Server.Title
	if title == "" {
		title = app.Name()
	}
	opts := []server.Option{
		server.WithMethod(app.Method()),
		server.WithTimeout(c.cfg.Server.Timeout),
		server.WithTitle(title),
	}
	if c.cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(c.cfg.Server.CORS) > 0 {
		opts = append(opts, server.WithCORS(c.cfg.Server.CORS...))
	}
	if len(c.cfg.Server.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(c.cfg.Server.MetadataHeaders...))
	}
	return server.New(appRoot(app), opts...)
}

// appRoot serves app.Root for the request path. Routed apps answer 404 for
// paths no route (or fallback) matches.
func appRoot(app *decl.App) server.RootFunc {
	return func(r *http.Request) (*tree.Node, error) {
		if app.Routed() {
			if _, ok := app.RouterState(r.URL.Path); !ok {
				return nil, errors.Wrap(server.ErrNotFound, r.URL.Path)
			}
		}
		return app.Root(r.URL.Path), nil
	}
}
