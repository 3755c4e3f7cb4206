package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	decl "github.com/hanpama/compdata/internal/decl"
	eventbus "github.com/hanpama/compdata/internal/eventbus"
	logging "github.com/hanpama/compdata/internal/logging"
)

const longDescription = `compdata resolves the data a component tree needs on the server, embeds it
in the rendered page, and replays it on the client without fetching twice.

Applications are described in YAML (see the decl package). Settings come from
flags, COMPDATA_* environment variables (dots become underscores), and an
optional compdata.yaml in the working directory or the file named by --config.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// cli holds state shared by all subcommands of one invocation.
type cli struct {
	cfgFile string
	cfg     config
	bus     *eventbus.Bus
	log     *logrus.Entry
	logOut  io.Writer
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	c := &cli{logOut: logOut}
	root := &cobra.Command{
		Use:           "compdata",
		Short:         "Resolve, embed and replay component data",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default: ./compdata.yaml if present)")
	pf.String("method", "", "resolution method name when the app declares none (default: getInitialProps)")
	pf.String("log.level", "", "log level: debug, info, warn, error (default: info)")
	pf.String("log.format", "", "log format: text or json (default: text)")

	root.AddCommand(
		newResolveCmd(c),
		newServeCmd(c),
		newHydrateCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, c.logOut)
	c.log = logging.New("cli").WithField("command", cmd.Name())

	c.bus = eventbus.New()
	eventbus.Use(c.bus)
	return nil
}

// loadApp compiles the application at path. The configured method applies
// when the file does not name one, and GraphQL sources forward the configured
// metadata headers unless they list their own.
func (c *cli) loadApp(path string) (*decl.App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read app %s", path)
	}
	def, err := decl.Parse(data)
	if err != nil {
		return nil, err
	}
	if def.Method == "" {
		def.Method = c.cfg.Method
	}
	app, err := decl.Compile(def,
		decl.WithLogger(logging.New("decl")),
		decl.WithForwardMetadata(c.cfg.Server.MetadataHeaders...))
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"app": app.Name(), "method": app.Method(), "routed": app.Routed()}).Debug("app loaded")
	return app, nil
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
