package domain

// PresetEntry is positional when Overrides is nil: it inherits the request
// entry's params verbatim. Otherwise Overrides are merged over them.
type PresetEntry struct {
	Name      string
	Overrides Params
}

func Positional(name string) PresetEntry {
	return PresetEntry{Name: name}
}

func Keyed(name string, overrides Params) PresetEntry {
	if overrides == nil {
		overrides = Params{}
	}
	return PresetEntry{Name: name, Overrides: overrides}
}

func (e PresetEntry) Positional() bool {
	return e.Overrides == nil
}

// Preset is a named macro expanded at apply time.
type Preset []PresetEntry
