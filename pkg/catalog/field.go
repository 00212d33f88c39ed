// Package catalog builds the planner catalog advertised by the backend into
// typed definitions and parameter panels, and keeps at most one panel
// visible.
package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// Kind is the tag of a field variant.
type Kind string

const (
	KindSelect   Kind = "select"
	KindCheckbox Kind = "checkbox"
	KindNumber   Kind = "number"
	KindRange    Kind = "range"
)

// FieldSpec is one planner parameter. Which constraint fields apply depends
// on Kind: Options and DefaultOption for select, DefaultBool for checkbox,
// DefaultInt, Min, Max and Step for number and range.
type FieldSpec struct {
	Kind        Kind
	Name        string
	DisplayName string
	Description string

	Options       []string
	DefaultOption string
	DefaultBool   bool
	DefaultInt    int
	Min           *int
	Max           *int
	Step          int
}

// SchemaError is a catalog entry that cannot be built.
type SchemaError struct {
	Planner string
	Field   string
	Reason  string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("planner %q, field %q: %s", e.Planner, e.Field, e.Reason)
	}
	return fmt.Sprintf("planner %q: %s", e.Planner, e.Reason)
}

// FieldError is a value a field cannot take.
type FieldError struct {
	Field string
	Value any
	Kind  Kind
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: invalid %s value %v", e.Field, e.Kind, e.Value)
}

// buildField is the single dispatch point from a raw schema to a variant.
func buildField(planner string, s gateway.FieldSchema) (FieldSpec, error) {
	f := FieldSpec{
		Kind:        Kind(s.Type),
		Name:        s.Name,
		DisplayName: s.DisplayName,
		Description: s.Description,
	}
	bad := func(format string, args ...any) (FieldSpec, error) {
		return FieldSpec{}, &SchemaError{Planner: planner, Field: s.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(s.Name) == "" {
		return bad("missing name")
	}
	if f.DisplayName == "" {
		f.DisplayName = f.Name
	}
	hasDefault := len(s.Default) > 0 && string(s.Default) != "null"

	switch f.Kind {
	case KindSelect:
		if len(s.Options) == 0 {
			return bad("select without options")
		}
		f.Options = append([]string(nil), s.Options...)
		f.DefaultOption = f.Options[0]
		if hasDefault {
			var d string
			if err := json.Unmarshal(s.Default, &d); err != nil {
				return bad("default %s is not a string", s.Default)
			}
			if !slices.Contains(f.Options, d) {
				return bad("default %q is not an option", d)
			}
			f.DefaultOption = d
		}
	case KindCheckbox:
		if hasDefault {
			if err := json.Unmarshal(s.Default, &f.DefaultBool); err != nil {
				return bad("default %s is not a boolean", s.Default)
			}
		}
	case KindNumber, KindRange:
		f.Min = roundPtr(s.Min)
		f.Max = roundPtr(s.Max)
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return bad("min %d is greater than max %d", *f.Min, *f.Max)
		}
		if s.Step != nil {
			f.Step = int(math.Round(*s.Step))
		}
		if f.Step <= 0 {
			f.Step = 1
		}
		if hasDefault {
			var d float64
			if err := json.Unmarshal(s.Default, &d); err != nil {
				return bad("default %s is not a number", s.Default)
			}
			f.DefaultInt = int(math.Round(d))
		} else if f.Min != nil {
			f.DefaultInt = *f.Min
		}
		f.DefaultInt = f.Clamp(f.DefaultInt)
	default:
		return bad("unknown field type %q", s.Type)
	}
	return f, nil
}

func roundPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	i := int(math.Round(*v))
	return &i
}

// Clamp bounds v to [Min, Max], applying Max first.
func (f FieldSpec) Clamp(v int) int {
	if f.Max != nil && v > *f.Max {
		v = *f.Max
	}
	if f.Min != nil && v < *f.Min {
		v = *f.Min
	}
	return v
}

// Default returns the initial value: string, bool or int by kind.
func (f FieldSpec) Default() any {
	switch f.Kind {
	case KindSelect:
		return f.DefaultOption
	case KindCheckbox:
		return f.DefaultBool
	default:
		return f.DefaultInt
	}
}

// Coerce converts raw input (JSON value or command line text) into the
// field's typed value.
func (f FieldSpec) Coerce(raw any) (any, error) {
	invalid := &FieldError{Field: f.Name, Value: raw, Kind: f.Kind}
	switch f.Kind {
	case KindSelect:
		s, ok := raw.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return nil, invalid
		}
		return s, nil
	case KindCheckbox:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "on", "yes", "1":
				return true, nil
			case "false", "off", "no", "0", "":
				return false, nil
			}
		}
		return nil, invalid
	case KindNumber, KindRange:
		var n float64
		switch v := raw.(type) {
		case int:
			n = float64(v)
		case int64:
			n = float64(v)
		case float64:
			n = v
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return nil, invalid
			}
			n = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, invalid
			}
			n = parsed
		default:
			return nil, invalid
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalid
		}
		n = math.Max(math.Min(n, math.MaxInt32), math.MinInt32)
		return f.Clamp(int(math.Round(n))), nil
	}
	return nil, invalid
}

func (f FieldSpec) viewField(value any) view.Field {
	return view.Field{
		Name:        f.Name,
		Kind:        string(f.Kind),
		DisplayName: f.DisplayName,
		Description: f.Description,
		Options:     f.Options,
		Min:         f.Min,
		Max:         f.Max,
		Step:        f.Step,
		Value:       value,
	}
}

// Definition is one planning method.
type Definition struct {
	Name        string
	DisplayName string
	Description string
	Fields      []FieldSpec
}

// BuildDefinition validates a raw planner schema. Any bad field fails the
// whole definition.
func BuildDefinition(s gateway.PlannerSchema) (Definition, error) {
	if strings.TrimSpace(s.Name) == "" {
		return Definition{}, &SchemaError{Reason: "planner without a name"}
	}
	d := Definition{
		Name:        s.Name,
		DisplayName: s.DisplayName,
		Description: s.Description,
		Fields:      make([]FieldSpec, 0, len(s.Fields)),
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, fs := range s.Fields {
		f, err := buildField(s.Name, fs)
		if err != nil {
			return Definition{}, err
		}
		if seen[f.Name] {
			return Definition{}, &SchemaError{Planner: s.Name, Field: f.Name, Reason: "duplicate field"}
		}
		seen[f.Name] = true
		d.Fields = append(d.Fields, f)
	}
	return d, nil
}

// Field returns the field named name.
func (d Definition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
