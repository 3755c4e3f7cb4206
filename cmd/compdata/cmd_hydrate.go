package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	frame "github.com/hanpama/compdata/internal/frame"
	hydrate "github.com/hanpama/compdata/internal/hydrate"
	logging "github.com/hanpama/compdata/internal/logging"
	payload "github.com/hanpama/compdata/internal/payload"
	provider "github.com/hanpama/compdata/internal/provider"
)

type hydrateFlags struct {
	path    string
	offline bool
}

func newHydrateCmd(c *cli) *cobra.Command {
	var fl hydrateFlags
	cmd := &cobra.Command{
		Use:   "hydrate APP.yaml PAGE.html",
		Short: "Replay a rendered page client-side and report where each node's data came from",
		Long: `Rebuild the application's tree for --path and activate every client
resolver boundary against the payload embedded in PAGE.html, as a browser
would on first load. Nodes missing from the payload resolve themselves
unless --offline is set. One line is printed per boundary.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.hydrate(cmd, args[0], args[1], fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.path, "path", "/", "request path the page was rendered for")
	f.BoolVar(&fl.offline, "offline", false, "never self-resolve nodes the payload does not cover")
	f.Duration("freshness", 0, "window in which frame data counts as fresh (default: 500ms)")
	return cmd
}

func (c *cli) hydrate(cmd *cobra.Command, appFile, pageFile string, fl hydrateFlags) error {
	app, err := c.loadApp(appFile)
	if err != nil {
		return err
	}
	page, err := os.Open(pageFile)
	if err != nil {
		return errors.Wrapf(err, "open page %s", pageFile)
	}
	defer page.Close()
	store, err := payload.NewStoreFromHTML(page)
	if err != nil {
		return errors.Wrapf(err, "read page %s", pageFile)
	}
	if !store.Present() {
		c.log.WithField("page", pageFile).Warn("page carries no payload")
	}

	root := (&provider.Provider{Method: app.Method()}).Wrap(app.Root(fl.path))
	rep := hydrate.Hydrate(cmd.Context(), root, frame.Empty(),
		hydrate.WithClient(!fl.offline),
		hydrate.WithStore(store),
		hydrate.WithMethod(app.Method()),
		hydrate.WithFreshness(c.cfg.Freshness),
		hydrate.WithLogger(logging.New("hydrate")),
	)

	out := cmd.OutOrStdout()
	for _, nr := range rep.Nodes {
		name := nr.Identity
		if name == "" {
			name = "(anonymous)"
		}
		if nr.Err != nil {
			writeLine(out, "%s\t%s\terror: %v", name, nr.Source, nr.Err)
			continue
		}
		writeLine(out, "%s\t%s", name, nr.Source)
	}
	return errors.Wrap(rep.Err, "hydrate")
}
