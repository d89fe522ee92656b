package plugin

// Category represents the functional kind of a plugin.
type Category string

const (
	// CategoryCalendar plugins provide events for the dashboard calendar.
	CategoryCalendar Category = "calendar"
	// CategoryImage plugins provide photos for the dashboard slideshow.
	CategoryImage Category = "image"
	// CategoryService plugins provide embeddable widget content.
	CategoryService Category = "service"
)

// Valid reports whether the category is one of the known kinds.
func (c Category) Valid() bool {
	switch c {
	case CategoryCalendar, CategoryImage, CategoryService:
		return true
	}
	return false
}

// Field describes one entry of a plugin type's configuration schema.
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Kind     string   `json:"kind" yaml:"kind"`
	Default  any      `json:"default,omitempty" yaml:"default,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Schema is the ordered list of configuration fields a type accepts.
type Schema []Field

// Field returns the schema entry with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Info contains descriptive metadata for a plugin type.
type Info struct {
	TypeID      string
	Name        string
	Description string
	Version     string
	Category    Category
	Schema      Schema
	// PropagateToggle makes enabling or disabling the type force the
	// same state onto every instance of the type. Integrations that
	// support a single instance per account set this.
	PropagateToggle bool
}

// State represents the lifecycle position of a live plugin object.
type State string

const (
	StateConstructed State = "constructed"
	StateConfigured  State = "configured"
	StateRunning     State = "running"
	StateDisabled    State = "disabled"
	StateClosed      State = "closed"
)
