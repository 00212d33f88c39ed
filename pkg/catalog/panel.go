package catalog

import (
	"fmt"

	"github.com/rubiojr/pathfinder/pkg/view"
)

// Panel holds the current parameter values of one planner.
type Panel struct {
	def     Definition
	values  map[string]any
	view    view.PanelView
	visible bool
}

func newPanel(def Definition, surface view.Surface) *Panel {
	p := &Panel{def: def, values: make(map[string]any, len(def.Fields))}
	fields := make([]view.Field, 0, len(def.Fields))
	for _, f := range def.Fields {
		v := f.Default()
		p.values[f.Name] = v
		fields = append(fields, f.viewField(v))
	}
	p.view = surface.AddPanel(def.Name, fields)
	p.view.SetVisible(false)
	return p
}

func (p *Panel) Definition() Definition { return p.def }

func (p *Panel) Name() string { return p.def.Name }

func (p *Panel) Visible() bool { return p.visible }

// Set stores a new value for field, coerced to the field's kind. Numeric
// values are clamped. It returns the stored value.
func (p *Panel) Set(field string, raw any) (any, error) {
	f, ok := p.def.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: planner %q has no field %q", ErrUnknownField, p.def.Name, field)
	}
	v, err := f.Coerce(raw)
	if err != nil {
		return nil, err
	}
	p.values[field] = v
	p.view.SetValue(field, v)
	return v, nil
}

// Value returns the current value of field.
func (p *Panel) Value(field string) (any, bool) {
	v, ok := p.values[field]
	return v, ok
}

// Values maps every field name to its typed value: string for select, bool
// for checkbox, int for number and range. This is the planner options
// payload.
func (p *Panel) Values() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Reset restores every default.
func (p *Panel) Reset() {
	for _, f := range p.def.Fields {
		v := f.Default()
		p.values[f.Name] = v
		p.view.SetValue(f.Name, v)
	}
}

func (p *Panel) setVisible(on bool) {
	p.visible = on
	p.view.SetVisible(on)
}
