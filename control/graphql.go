package control

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/engine"
	"github.com/fraendk-lang/elastic-pulse-studio/export"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Exporter is the export control surface. export.Recorder satisfies it.
type Exporter interface {
	StartExport(s export.Settings) error
	IsExporting() bool
	Progress() float64
	CurrentFrame() int
	TotalFrames() int
	State() export.State
	Err() error
}

// TransportStatus is the transport as reported to clients.
type TransportStatus struct {
	Time      float64 `json:"time"`
	Playing   bool    `json:"playing"`
	Duration  float64 `json:"duration"`
	Looping   bool    `json:"looping"`
	LoopStart float64 `json:"loopStart"`
	LoopEnd   float64 `json:"loopEnd"`
}

// ExportStatus is the export control surface as reported to clients.
type ExportStatus struct {
	Exporting    bool    `json:"exporting"`
	State        string  `json:"state"`
	Progress     float64 `json:"progress"`
	CurrentFrame int     `json:"currentFrame"`
	TotalFrames  int     `json:"totalFrames"`
	Error        string  `json:"error"`
}

// API answers graphql queries and mutations against a running engine.
type API struct {
	eng    *engine.Engine
	reg    *Registry
	rec    Exporter
	schema graphql.Schema
}

// NewAPI builds the schema. rec may be nil when exporting is unavailable.
func NewAPI(eng *engine.Engine, reg *Registry, rec Exporter) (*API, error) {
	a := &API{eng: eng, reg: reg, rec: rec}
	if err := a.initGraphql(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *API) transportStatus() *TransportStatus {
	st := a.eng.Transport.State()
	ts := &TransportStatus{Time: st.Time, Playing: st.Playing, Duration: st.Duration}
	if st.Loop != nil {
		ts.Looping, ts.LoopStart, ts.LoopEnd = true, st.Loop.Start, st.Loop.End
	}
	return ts
}

func (a *API) exportStatus() *ExportStatus {
	if a.rec == nil {
		return &ExportStatus{State: export.Idle.String()}
	}
	es := &ExportStatus{
		Exporting:    a.rec.IsExporting(),
		State:        a.rec.State().String(),
		Progress:     a.rec.Progress(),
		CurrentFrame: a.rec.CurrentFrame(),
		TotalFrames:  a.rec.TotalFrames(),
	}
	if err := a.rec.Err(); err != nil {
		es.Error = err.Error()
	}
	return es
}

func featuresType() *graphql.Object {
	fields := graphql.Fields{
		"bpm": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				s, ok := p.Source.(*features.Snapshot)
				if !ok {
					return nil, fmt.Errorf("unexpected source %T", p.Source)
				}
				return s.BPM, nil
			},
		},
	}
	for b := features.Band(0); b < features.NumBands; b++ {
		b := b
		fields[b.String()] = &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				s, ok := p.Source.(*features.Snapshot)
				if !ok {
					return nil, fmt.Errorf("unexpected source %T", p.Source)
				}
				return s.Features.Get(b), nil
			},
		}
	}
	return graphql.NewObject(graphql.ObjectConfig{Name: "FeaturesType", Fields: fields})
}

func (a *API) initGraphql() error {
	masterType, masterInput := NewGraphqlType("MasterType", &timeline.MasterFX{})
	transportType, _ := NewGraphqlType("TransportType", &TransportStatus{})
	exportType, _ := NewGraphqlType("ExportType", &ExportStatus{})
	_, settingsInput := NewGraphqlType("ExportSettings", &export.Settings{})
	featType := featuresType()

	masterMut := &graphql.Field{
		Type: masterType,
		Args: graphql.FieldConfigArgument{
			"params": &graphql.ArgumentConfig{Type: graphql.NewNonNull(masterInput)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			params, _ := p.Args["params"].(map[string]interface{})
			var out timeline.MasterFX
			err := a.eng.Session.Update(func(proj *timeline.Project) error {
				m := proj.Master
				if err := Assign(&m, params); err != nil {
					return err
				}
				proj.Master = m
				out = m
				return nil
			})
			if err != nil {
				return nil, err
			}
			return &out, nil
		},
	}
	updateMut := &graphql.Field{
		Type: graphql.Boolean,
		Args: graphql.FieldConfigArgument{
			"param": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			"value": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			param, _ := p.Args["param"].(string)
			value, _ := toFloat(p.Args["value"])
			if err := a.reg.Apply(param, value); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	transportMut := func(fn func()) *graphql.Field {
		return &graphql.Field{
			Type: transportType,
			Resolve: func(graphql.ResolveParams) (interface{}, error) {
				fn()
				return a.transportStatus(), nil
			},
		}
	}
	seekMut := &graphql.Field{
		Type: transportType,
		Args: graphql.FieldConfigArgument{
			"time": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			t, _ := toFloat(p.Args["time"])
			a.eng.Transport.Seek(t)
			return a.transportStatus(), nil
		},
	}
	exportMut := &graphql.Field{
		Type: exportType,
		Args: graphql.FieldConfigArgument{
			"settings": &graphql.ArgumentConfig{Type: settingsInput},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			if a.rec == nil {
				return nil, export.ErrCaptureUnavailable
			}
			var s export.Settings
			if args, ok := p.Args["settings"].(map[string]interface{}); ok {
				if err := Assign(&s, args); err != nil {
					return nil, err
				}
			}
			if err := a.rec.StartExport(s); err != nil {
				return nil, err
			}
			return a.exportStatus(), nil
		},
	}

	rootQuery := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "RootQuery",
			Fields: graphql.Fields{
				"master": &graphql.Field{
					Type: masterType,
					Resolve: func(graphql.ResolveParams) (interface{}, error) {
						m := a.eng.Session.Snapshot().Master
						return &m, nil
					},
				},
				"features": &graphql.Field{
					Type: featType,
					Resolve: func(graphql.ResolveParams) (interface{}, error) {
						f := a.eng.Status().Features
						return &f, nil
					},
				},
				"transport": &graphql.Field{
					Type: transportType,
					Resolve: func(graphql.ResolveParams) (interface{}, error) {
						return a.transportStatus(), nil
					},
				},
				"export": &graphql.Field{
					Type: exportType,
					Resolve: func(graphql.ResolveParams) (interface{}, error) {
						return a.exportStatus(), nil
					},
				},
				"params": &graphql.Field{
					Type: graphql.NewList(graphql.String),
					Resolve: func(graphql.ResolveParams) (interface{}, error) {
						return a.reg.Paths(), nil
					},
				},
			},
		},
	)
	rootMut := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "RootMut",
			Fields: graphql.Fields{
				"master":      masterMut,
				"update":      updateMut,
				"play":        transportMut(a.eng.Transport.Play),
				"pause":       transportMut(a.eng.Transport.Pause),
				"seek":        seekMut,
				"startExport": exportMut,
			},
		},
	)
	schema, err := graphql.NewSchema(
		graphql.SchemaConfig{
			Query:    rootQuery,
			Mutation: rootMut,
		},
	)
	if err != nil {
		return err
	}
	a.schema = schema
	return nil
}

// Query runs a graphql request.
func (a *API) Query(query string, vars map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         a.schema,
		RequestString:  query,
		VariableValues: vars,
	})
}

var textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

// NewGraphqlType builds an output object and an input object from the json
// tagged fields of the struct val points to. Fields whose type implements
// encoding.TextMarshaler are exposed as strings. Resolvers accept a pointer
// to the same struct type as their source.
func NewGraphqlType(name string, val interface{}) (*graphql.Object, *graphql.InputObject) {
	fields := graphql.Fields{}
	inputFields := graphql.InputObjectConfigFieldMap{}

	ref := reflect.TypeOf(val).Elem()
	tagMap := newJSONTagFieldMap(ref)

	resolver := func(i int) func(graphql.ResolveParams) (interface{}, error) {
		return func(p graphql.ResolveParams) (interface{}, error) {
			src := reflect.ValueOf(p.Source)
			if src.Kind() != reflect.Ptr || src.Type().Elem() != ref {
				return nil, fmt.Errorf("something went wrong: %#v", p.Source)
			}
			f := src.Elem().Field(i)
			if f.Type().Implements(textMarshaler) {
				b, err := f.Interface().(encoding.TextMarshaler).MarshalText()
				return string(b), err
			}
			return f.Interface(), nil
		}
	}

	for tag, i := range tagMap {
		f := ref.Field(i)
		typ := scalarType(f.Type)
		if typ == nil {
			panic(fmt.Sprint("unsupported type ", f.Type))
		}
		fields[tag] = &graphql.Field{Type: typ, Resolve: resolver(i)}
		inputFields[tag] = &graphql.InputObjectFieldConfig{Type: typ}
	}

	objType := graphql.NewObject(
		graphql.ObjectConfig{
			Name:   name,
			Fields: fields,
		})
	inputType := graphql.NewInputObject(
		graphql.InputObjectConfig{
			Name:   "input" + name,
			Fields: inputFields,
		})
	return objType, inputType
}

func scalarType(t reflect.Type) graphql.Type {
	if t.Implements(textMarshaler) {
		return graphql.String
	}
	switch t.Kind() {
	case reflect.Bool:
		return graphql.Boolean
	case reflect.Float32, reflect.Float64:
		return graphql.Float
	case reflect.String:
		return graphql.String
	case reflect.Int, reflect.Int8, reflect.Int32, reflect.Int64:
		return graphql.Int
	}
	return nil
}

// Assign copies graphql input values onto the json tagged fields of the
// struct dst points to.
func Assign(dst interface{}, args map[string]interface{}) error {
	elem := reflect.ValueOf(dst).Elem()
	tagMap := newJSONTagFieldMap(elem.Type())
	for arg, val := range args {
		if val == nil {
			continue
		}
		i, ok := tagMap[arg]
		if !ok {
			return fmt.Errorf("unknown field %q", arg)
		}
		f := elem.Field(i)
		if u, ok := f.Addr().Interface().(encoding.TextUnmarshaler); ok {
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s: want a string, got %T", arg, val)
			}
			if err := u.UnmarshalText([]byte(s)); err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			continue
		}
		switch f.Kind() {
		case reflect.Bool:
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("%s: want a boolean, got %T", arg, val)
			}
			f.SetBool(b)
		case reflect.Float32, reflect.Float64:
			v, ok := toFloat(val)
			if !ok {
				return fmt.Errorf("%s: want a number, got %T", arg, val)
			}
			f.SetFloat(v)
		case reflect.Int, reflect.Int8, reflect.Int32, reflect.Int64:
			v, ok := toFloat(val)
			if !ok {
				return fmt.Errorf("%s: want a number, got %T", arg, val)
			}
			f.SetInt(int64(v))
		case reflect.String:
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s: want a string, got %T", arg, val)
			}
			f.SetString(s)
		default:
			return errors.New("unsupported field " + arg)
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func jsonTag(f *reflect.StructField) string {
	t := f.Tag.Get("json")
	return strings.Split(t, ",")[0]
}

func newJSONTagFieldMap(t reflect.Type) map[string]int {
	m := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag := jsonTag(&f); tag != "" && tag != "-" {
			m[tag] = i
		}
	}
	return m
}
