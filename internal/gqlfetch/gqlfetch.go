// Package gqlfetch provides resolution methods backed by a GraphQL endpoint.
// A Source holds one parsed query operation and posts it, with variables, to
// the endpoint each time a node resolves.
package gqlfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/metadata"

	language "github.com/hanpama/compdata/internal/language"
	logging "github.com/hanpama/compdata/internal/logging"
	tree "github.com/hanpama/compdata/internal/tree"
)

// ErrResponse is wrapped by errors reported in a GraphQL response body.
var ErrResponse = errors.New("gqlfetch: graphql error")

type Options struct {
	OperationName string
	Schema        *language.Schema
	Client        *http.Client
	// ForwardMetadata lists outgoing metadata keys copied into request
	// headers.
	ForwardMetadata []string
	Logger          *logrus.Entry
}

type Option func(*Options)

func WithOperationName(name string) Option   { return func(o *Options) { o.OperationName = name } }
func WithSchema(s *language.Schema) Option    { return func(o *Options) { o.Schema = s } }
func WithHTTPClient(c *http.Client) Option    { return func(o *Options) { o.Client = c } }
func WithForwardMetadata(keys ...string) Option {
	return func(o *Options) { o.ForwardMetadata = keys }
}
func WithLogger(l *logrus.Entry) Option { return func(o *Options) { o.Logger = l } }

// Source is a query bound to an endpoint.
type Source struct {
	endpoint string
	query    string
	op       *language.OperationDefinition
	opt      Options
}

// New parses query, validating it when a schema is configured, and selects
// its operation. Only query operations are accepted.
func New(endpoint, query string, opts ...Option) (*Source, error) {
	op := Options{Client: http.DefaultClient}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = logging.New("gqlfetch")
	}

	var (
		doc *language.QueryDocument
		err error
	)
	if op.Schema != nil {
		doc, err = language.LoadQuery(op.Schema, query)
	} else {
		doc, err = language.ParseQuery(query)
	}
	if err != nil {
		return nil, errors.Wrap(err, "gqlfetch: parse query")
	}
	def, err := language.SelectOperation(doc, op.OperationName)
	if err != nil {
		return nil, errors.Wrap(err, "gqlfetch")
	}
	if def.Operation != language.Query {
		return nil, errors.Errorf("gqlfetch: operation %q is a %s; only queries resolve data", def.Name, def.Operation)
	}
	return &Source{endpoint: endpoint, query: query, op: def, opt: op}, nil
}

// OperationName returns the selected operation's name, empty when anonymous.
func (s *Source) OperationName() string { return s.op.Name }

// Variables returns the names of the variables the operation declares.
func (s *Source) Variables() []string {
	out := make([]string, 0, len(s.op.VariableDefinitions))
	for _, v := range s.op.VariableDefinitions {
		out = append(out, v.Variable)
	}
	return out
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type responseError struct {
	Message string `json:"message"`
}

type response struct {
	Data   map[string]any  `json:"data"`
	Errors []responseError `json:"errors"`
}

// Fetch executes the operation with vars and returns the response data as
// props. Errors listed in the response fail the fetch.
func (s *Source) Fetch(ctx context.Context, vars map[string]any) (tree.Props, error) {
	body, err := json.Marshal(request{Query: s.query, OperationName: s.op.Name, Variables: vars})
	if err != nil {
		return nil, errors.Wrap(err, "gqlfetch: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "gqlfetch: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	s.forward(ctx, req.Header)

	log := s.opt.Logger.WithFields(logrus.Fields{"endpoint": s.endpoint, "operation": s.op.Name})
	resp, err := s.opt.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "gqlfetch: post %s", s.endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "gqlfetch: read response")
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, errors.Errorf("gqlfetch: %s: status %d", s.endpoint, resp.StatusCode)
		}
		return nil, errors.Wrap(err, "gqlfetch: decode response")
	}
	if len(out.Errors) > 0 {
		var merr *multierror.Error
		for _, e := range out.Errors {
			merr = multierror.Append(merr, errors.Wrap(ErrResponse, e.Message))
		}
		log.WithField("errors", len(out.Errors)).Debug("response carried errors")
		return nil, merr
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("gqlfetch: %s: status %d", s.endpoint, resp.StatusCode)
	}
	log.Debug("fetched")
	return tree.Props(out.Data), nil
}

func (s *Source) forward(ctx context.Context, h http.Header) {
	if len(s.opt.ForwardMetadata) == 0 {
		return
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return
	}
	for _, k := range s.opt.ForwardMetadata {
		for _, v := range md.Get(k) {
			h.Add(k, v)
		}
	}
}

// Method returns a resolution method that fetches with vars.
func (s *Source) Method(vars map[string]any) tree.ResolveFunc {
	return func(ctx context.Context) *tree.Future {
		return tree.Go(ctx, func(ctx context.Context) (tree.Props, error) {
			return s.Fetch(ctx, vars)
		})
	}
}

func (s *Source) String() string {
	name := s.op.Name
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("%s@%s", name, strings.TrimSuffix(s.endpoint, "/"))
}
