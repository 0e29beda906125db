package editor

import (
	"fmt"

	"github.com/joeblew999/plat-critters/internal/feature"
)

// Mode is the coordinator's top-level state.
type Mode int

const (
	ModeIdle Mode = iota
	ModePlacing
	ModeSelected
	ModePending
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePlacing:
		return "placing"
	case ModeSelected:
		return "selected"
	case ModePending:
		return "pending"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// OpKind is the kind of round trip a request carries.
type OpKind int

const (
	OpNone OpKind = iota
	OpCreate
	OpUpdate
	OpDelete
	OpQuery
)

func (o OpKind) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpQuery:
		return "query"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Panel is the one visible editing panel.
type Panel int

const (
	// PanelCreate shows the template picker and placement instructions.
	PanelCreate Panel = iota
	// PanelEditor shows the attribute form of the selected feature.
	PanelEditor
)

func (p Panel) String() string {
	if p == PanelEditor {
		return "editor"
	}
	return "create"
}

// Visibility holds the display flag of every named panel.
type Visibility struct {
	AddFeature         bool `json:"addFeature"`
	AttributeEditor    bool `json:"attributeEditor"`
	UpdateInstructions bool `json:"updateInstructions"`
}

// Visibility maps the panel to display flags. Exactly one of AddFeature
// and AttributeEditor is set; the instructions follow the add panel.
func (p Panel) Visibility() Visibility {
	add := p != PanelEditor
	return Visibility{
		AddFeature:         add,
		AttributeEditor:    !add,
		UpdateInstructions: add,
	}
}

// Cursor is the pointer affordance shown over the map.
type Cursor string

const (
	CursorAuto      Cursor = "auto"
	CursorCrosshair Cursor = "crosshair"
)

// Snapshot is a copy of the edit session for rendering.
type Snapshot struct {
	Mode     Mode
	Op       OpKind
	Selected *feature.Feature
	Template *feature.Template
	Panel    Panel
	Cursor   Cursor
	InFlight uint64
	Err      error
}

// State renders mode and pending op, e.g. "pending(create)".
func (s Snapshot) State() string {
	if s.Mode == ModePending {
		return fmt.Sprintf("%s(%s)", s.Mode, s.Op)
	}
	return s.Mode.String()
}

// SelectedID returns the selected object id, or 0.
func (s Snapshot) SelectedID() int64 {
	if s.Selected == nil {
		return 0
	}
	return s.Selected.ID
}

// ErrorMessage returns the surfaced error text, or "".
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
