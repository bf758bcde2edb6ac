package theme

// Resolve combines the competing theme signals into a State.
//
// A valid forced theme wins outright. Otherwise a valid stored preference
// wins over the configured default, and an effective preference of "system"
// resolves to the system theme. Invalid stored values are treated as absent
// and an invalid default behaves as "system".
func Resolve(forced Theme, stored Preference, system Theme, def Preference) State {
	if forced.Valid() {
		return State{Preference: forced.Preference(), ResolvedTheme: forced, Source: SourceForced}
	}
	if !system.Valid() {
		system = Light
	}
	if !def.Valid() {
		def = PreferenceSystem
	}

	hasStored := stored.Valid()
	effective := def
	if hasStored {
		effective = stored
	}

	if effective == PreferenceSystem {
		src := SourceDefault
		switch {
		case hasStored:
			src = SourceStorage
		case def == PreferenceSystem:
			src = SourceSystem
		}
		return State{Preference: PreferenceSystem, ResolvedTheme: system, Source: src}
	}

	src := SourceDefault
	if hasStored {
		src = SourceStorage
	}
	return State{Preference: effective, ResolvedTheme: Theme(effective), Source: src}
}

// ServerState is the fixed default-based state used where no environment is
// available.
func ServerState(def Preference) State {
	if !def.Valid() {
		def = PreferenceSystem
	}
	resolved := Light
	if def == PreferenceDark {
		resolved = Dark
	}
	return State{Preference: def, ResolvedTheme: resolved, Source: SourceDefault}
}
