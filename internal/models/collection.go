package models

// Collection is a snapshot of records loaded from one source
type Collection struct {
	// Name identifies the snapshot in logs and reports, usually the source path
	Name    string           `yaml:"name,omitempty" json:"name,omitempty"`
	Version string           `yaml:"version,omitempty" json:"version,omitempty"`
	Records []TemplateRecord `yaml:"records" json:"records"`

	// Source is the path the collection was read from
	Source string `yaml:"-" json:"-"`
}

// IDs returns the record ids in collection order, duplicates included
func (c *Collection) IDs() []string {
	ids := make([]string, len(c.Records))
	for i, r := range c.Records {
		ids[i] = r.ID
	}
	return ids
}
