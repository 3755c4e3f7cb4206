package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	frame "github.com/hanpama/compdata/internal/frame"
	hydrate "github.com/hanpama/compdata/internal/hydrate"
	logging "github.com/hanpama/compdata/internal/logging"
	provider "github.com/hanpama/compdata/internal/provider"
	reqid "github.com/hanpama/compdata/internal/reqid"
	resolver "github.com/hanpama/compdata/internal/resolver"
	tree "github.com/hanpama/compdata/internal/tree"
)

// ErrNotFound is returned by a RootFunc when no page exists for the request.
var ErrNotFound = errors.New("server: no page for request")

// RequestIDMetadataKey carries the request ID in outgoing gRPC metadata.
const RequestIDMetadataKey = "compdata-request-id"

// RootFunc returns the node tree to render for r.
type RootFunc func(r *http.Request) (*tree.Node, error)

// Handler is an http.Handler that renders pages server-side. For each request
// it resolves the page's data, renders the tree with that data, and embeds
// the snapshot in the document for the client.
type Handler struct {
	root RootFunc
	res  *resolver.Resolver
	opt  Options
	log  *logrus.Entry
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// Method is the resolution method name components expose.
	Method string

	// Title is the document title.
	Title string

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMethod(name string) Option      { return func(o *Options) { o.Method = name } }
func WithTitle(title string) Option      { return func(o *Options) { o.Title = title } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a page handler rendering the trees returned by root.
func New(root RootFunc, opts ...Option) (*Handler, error) {
	if root == nil {
		return nil, errors.New("server: nil root func")
	}
	op := Options{Timeout: 10 * time.Second, Method: tree.DefaultMethod}
	for _, f := range opts {
		f(&op)
	}
	log := logging.New("server")
	return &Handler{
		root: root,
		res:  resolver.New(resolver.WithMethod(op.Method), resolver.WithLogger(log)),
		opt:  op,
		log:  log,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	cw := &countingWriter{ResponseWriter: w, status: http.StatusOK}
	format := formatOf(r)
	start := time.Now()
	eventbus.Publish(ctx, events.PageStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.PageFinish{
			Request:  r,
			Status:   cw.status,
			Format:   format,
			Bytes:    cw.n,
			Duration: time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(cw, r, h.opt.CORS)
		}
		cw.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(cw, http.StatusMethodNotAllowed, errorBody("method not allowed"), h.opt.Pretty)
		return
	}
	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(cw, r, h.opt.CORS)
	}

	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[RequestIDMetadataKey] = []string{rid}
	ctx = metadata.NewOutgoingContext(ctx, md)
	log := h.log.WithFields(logrus.Fields{"rid": rid, "path": r.URL.Path})

	root, err := h.root(r.WithContext(ctx))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		log.WithError(err).Debug("no root")
		h.fail(cw, format, status, err)
		return
	}

	snap, err := h.res.ResolveTree(ctx, root, frame.Empty(), true)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.WithError(err).Warn("resolve failed")
		h.fail(cw, format, status, err)
		return
	}

	if format == formatJSON {
		writeJSON(cw, http.StatusOK, snap, h.opt.Pretty)
		return
	}

	page := (&provider.Provider{Data: snap, Method: h.opt.Method, ResolvedAt: time.Now()}).Wrap(root)
	rep := hydrate.Hydrate(ctx, page, frame.Empty(), hydrate.WithMethod(h.opt.Method), hydrate.WithLogger(log))
	if rep.Err != nil {
		log.WithError(rep.Err).Debug("page rendered with failed branches")
	}
	var buf bytes.Buffer
	if err := renderDocument(&buf, h.opt.Title, rep.Tree, snap); err != nil {
		log.WithError(err).Warn("render failed")
		h.fail(cw, format, http.StatusInternalServerError, err)
		return
	}
	cw.Header().Set("Content-Type", "text/html; charset=utf-8")
	cw.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = cw.Write(buf.Bytes())
	}
}

func (h *Handler) fail(w http.ResponseWriter, format string, status int, err error) {
	if format == formatJSON {
		writeJSON(w, status, errorBody(err.Error()), h.opt.Pretty)
		return
	}
	http.Error(w, http.StatusText(status), status)
}

const (
	formatHTML = "html"
	formatJSON = "json"
)

func formatOf(r *http.Request) string {
	if strings.EqualFold(r.URL.Query().Get("format"), formatJSON) {
		return formatJSON
	}
	return formatHTML
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse { return errorResponse{Error: msg} }

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

type countingWriter struct {
	http.ResponseWriter
	status int
	n      int
	wrote  bool
}

func (c *countingWriter) WriteHeader(status int) {
	if c.wrote {
		return
	}
	c.wrote = true
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *countingWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	n, err := c.ResponseWriter.Write(b)
	c.n += n
	return n, err
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
