// Package decl loads applications described in YAML: component types with
// their data sources, frame contributions and render templates. Template
// values are expr-lang expressions evaluated against the component's props.
package decl

import (
	"net/http"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	logging "github.com/hanpama/compdata/internal/logging"
)

// AppDef is the top-level YAML document.
type AppDef struct {
	App        string                  `yaml:"app"`
	Method     string                  `yaml:"method,omitempty"`
	Root       string                  `yaml:"root,omitempty"`
	Props      map[string]any          `yaml:"props,omitempty"`
	Routes     []RouteDef              `yaml:"routes,omitempty"`
	NotFound   string                  `yaml:"notFound,omitempty"`
	Components map[string]ComponentDef `yaml:"components"`
}

// RouteDef maps a path pattern to a component.
type RouteDef struct {
	Path      string `yaml:"path"`
	Component string `yaml:"component"`
}

// ComponentDef declares one component type.
type ComponentDef struct {
	// Anonymous components have no display name.
	Anonymous bool              `yaml:"anonymous,omitempty"`
	Defaults  map[string]any    `yaml:"defaults,omitempty"`
	Source    *SourceDef        `yaml:"source,omitempty"`
	Context   map[string]string `yaml:"context,omitempty"`
	Render    *RenderDef        `yaml:"render,omitempty"`
}

// SourceDef names where a component's data comes from. Exactly one field is
// set.
type SourceDef struct {
	Static  map[string]any `yaml:"static,omitempty"`
	HTTP    string         `yaml:"http,omitempty"`
	GraphQL *GraphQLDef    `yaml:"graphql,omitempty"`
}

type GraphQLDef struct {
	Endpoint  string         `yaml:"endpoint"`
	Query     string         `yaml:"query"`
	Operation string         `yaml:"operation,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
	// Forward lists outgoing metadata keys sent along as request headers.
	// Empty means the app-wide default (WithForwardMetadata).
	Forward []string `yaml:"forward,omitempty"`
}

// RenderDef is one node of a render template. Exactly one of Tag, Text or
// Component is set.
type RenderDef struct {
	Tag       string            `yaml:"tag,omitempty"`
	Text      string            `yaml:"text,omitempty"`
	Component string            `yaml:"component,omitempty"`
	Props     map[string]any    `yaml:"props,omitempty"`
	Bind      map[string]string `yaml:"bind,omitempty"`
	When      string            `yaml:"when,omitempty"`
	Boundary  bool              `yaml:"boundary,omitempty"`
	Children  []RenderDef       `yaml:"children,omitempty"`
}

type Options struct {
	Client *http.Client
	// ForwardMetadata is the default Forward list of GraphQL sources.
	ForwardMetadata []string
	Logger          *logrus.Entry
}

type Option func(*Options)

func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithLogger(l *logrus.Entry) Option    { return func(o *Options) { o.Logger = l } }
func WithForwardMetadata(keys ...string) Option {
	return func(o *Options) { o.ForwardMetadata = keys }
}

// Parse decodes a YAML application description.
func Parse(data []byte) (*AppDef, error) {
	var def AppDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "decl: parse YAML")
	}
	return &def, nil
}

// Load parses data and compiles the application.
func Load(data []byte, opts ...Option) (*App, error) {
	def, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(def, opts...)
}

// LoadFile reads and compiles the application at path.
func LoadFile(path string, opts ...Option) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "decl: read %s", path)
	}
	return Load(data, opts...)
}

// Validate checks that every referenced component exists and that each
// template node and source is well formed.
func (def *AppDef) Validate() error {
	if def.App == "" {
		return errors.New("decl: app name is required")
	}
	if def.Root == "" && len(def.Routes) == 0 {
		return errors.New("decl: either root or routes is required")
	}
	if def.Root != "" && len(def.Routes) > 0 {
		return errors.New("decl: root and routes are mutually exclusive")
	}
	if err := def.requireComponent(def.Root, "root"); err != nil {
		return err
	}
	if err := def.requireComponent(def.NotFound, "notFound"); err != nil {
		return err
	}
	for _, r := range def.Routes {
		if r.Path == "" {
			return errors.New("decl: route path is required")
		}
		if err := def.requireComponent(r.Component, "route "+r.Path); err != nil {
			return err
		}
	}
	for _, name := range def.componentNames() {
		c := def.Components[name]
		if c.Source != nil {
			if err := c.Source.validate(); err != nil {
				return errors.Wrapf(err, "decl: component %q", name)
			}
		}
		if c.Render != nil {
			if err := def.validateRender(c.Render); err != nil {
				return errors.Wrapf(err, "decl: component %q", name)
			}
		}
	}
	return nil
}

func (def *AppDef) requireComponent(name, where string) error {
	if name == "" {
		return nil
	}
	if _, ok := def.Components[name]; !ok {
		return errors.Errorf("decl: %s references unknown component %q", where, name)
	}
	return nil
}

func (def *AppDef) validateRender(r *RenderDef) error {
	set := 0
	for _, s := range []string{r.Tag, r.Text, r.Component} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("render node needs exactly one of tag, text or component")
	}
	if err := def.requireComponent(r.Component, "render"); err != nil {
		return err
	}
	for i := range r.Children {
		if err := def.validateRender(&r.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceDef) validate() error {
	set := 0
	if s.Static != nil {
		set++
	}
	if s.HTTP != "" {
		set++
	}
	if s.GraphQL != nil {
		set++
	}
	if set != 1 {
		return errors.New("source needs exactly one of static, http or graphql")
	}
	return nil
}

func (def *AppDef) componentNames() []string {
	names := make([]string, 0, len(def.Components))
	for n := range def.Components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func buildOptions(opts []Option) Options {
	op := Options{Client: http.DefaultClient}
	for _, f := range opts {
		f(&op)
	}
	if op.Client == nil {
		op.Client = http.DefaultClient
	}
	if op.Logger == nil {
		op.Logger = logging.New("decl")
	}
	return op
}
