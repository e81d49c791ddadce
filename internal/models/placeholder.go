package models

// Confidence marks how likely a bracketed token is a genuine fill-in field
type Confidence string

const (
	// ConfidenceField is the default: nothing suggests the token is anything
	// other than a value the user should supply
	ConfidenceField Confidence = "field"
	// ConfidenceAmbiguous flags tokens that read like citations or footnote
	// markers. They are still tokens; the caller decides what to show.
	ConfidenceAmbiguous Confidence = "ambiguous"
)

// Placeholder is a bracket-delimited token found in a record's full text.
// Literal is the exact token text including brackets and is its identity:
// occurrences with identical literals share one fill value.
type Placeholder struct {
	Literal     string     `yaml:"literal" json:"literal"`
	Occurrences int        `yaml:"occurrences" json:"occurrences"`
	Confidence  Confidence `yaml:"confidence" json:"confidence"`
	Reason      string     `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Label returns the token text without its brackets
func (p Placeholder) Label() string {
	if len(p.Literal) >= 2 {
		return p.Literal[1 : len(p.Literal)-1]
	}
	return p.Literal
}
