package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	frame "github.com/hanpama/compdata/internal/frame"
	logging "github.com/hanpama/compdata/internal/logging"
	payload "github.com/hanpama/compdata/internal/payload"
	resolver "github.com/hanpama/compdata/internal/resolver"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

type resolveFlags struct {
	path   string
	script bool
	proto  bool
	simple bool
	pretty bool
}

func newResolveCmd(c *cli) *cobra.Command {
	var fl resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve APP.yaml",
		Short: "Resolve an application's data and print the snapshot",
		Long: `Resolve every data source reachable from the application's root and print
the snapshot as JSON. With --script the snapshot is printed as the script
element a rendered page embeds. With --simple only the view matched by --path
is resolved and its bare props are printed. With --proto the snapshot is
printed as a google.protobuf.Struct in protobuf JSON form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.resolve(cmd, args[0], fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.path, "path", "/", "request path for routed apps")
	f.BoolVar(&fl.script, "script", false, "print the payload script element instead of JSON")
	f.BoolVar(&fl.proto, "proto", false, "print the snapshot as a google.protobuf.Struct")
	f.BoolVar(&fl.simple, "simple", false, "resolve only the matched view, without walking the tree")
	f.BoolVar(&fl.pretty, "pretty", false, "indent JSON output")
	return cmd
}

func (c *cli) resolve(cmd *cobra.Command, file string, fl resolveFlags) error {
	app, err := c.loadApp(file)
	if err != nil {
		return err
	}
	res := resolver.New(resolver.WithMethod(app.Method()), resolver.WithLogger(logging.New("resolver")))

	var snap *snapshot.Snapshot
	switch {
	case fl.simple && app.Routed():
		st, ok := app.RouterState(fl.path)
		if !ok {
			return errors.Errorf("no route matches %s", fl.path)
		}
		snap, err = res.ResolveSimple(cmd.Context(), st)
	case fl.simple:
		snap, err = res.ResolveSimple(cmd.Context(), app.Root(fl.path))
	default:
		snap, err = res.ResolveTree(cmd.Context(), app.Root(fl.path), frame.Empty(), true)
	}
	if err != nil {
		return err
	}
	c.log.WithField("entries", snap.Len()).Debug("resolved")

	out := cmd.OutOrStdout()
	if fl.script {
		tag, err := payload.ScriptTag(snap)
		if err != nil {
			return err
		}
		writeLine(out, "%s", tag)
		return nil
	}
	if fl.proto {
		if snap == nil {
			return errors.New("nothing resolved")
		}
		st, err := snap.ToStruct()
		if err != nil {
			return err
		}
		b, err := protojson.MarshalOptions{Multiline: fl.pretty}.Marshal(st)
		if err != nil {
			return errors.Wrap(err, "marshal struct")
		}
		writeLine(out, "%s", b)
		return nil
	}
	enc := json.NewEncoder(out)
	if fl.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}
