package publishers

// Package identifies a dependency by name and, optionally, an exact version.
// Ownership is tracked per name; the version is carried through to reports.
type Package struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

func (p Package) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "@" + p.Version
}
