package pipeline

// Model selects which configured model a chunk is sent to.
type Model int

const (
	Primary Model = iota
	Fallback
)

func (m Model) String() string {
	switch m {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// nextModel is the escalation order. A model without an entry is the last
// one: its failures consume the retry budget instead of escalating.
var nextModel = map[Model]Model{
	Primary: Fallback,
}

func (m Model) next() (Model, bool) {
	n, ok := nextModel[m]
	return n, ok
}

// Models maps each Model onto the identifier the translation backend expects.
type Models struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
}

// ID returns the backend identifier for m.
func (ms Models) ID(m Model) string {
	if m == Fallback {
		return ms.Fallback
	}
	return ms.Primary
}
