package theme

import "time"

// DefaultTransitionDelay is how long the transition-suppression style stays
// installed after a theme swap.
const DefaultTransitionDelay = time.Millisecond

const colorSchemeProperty = "color-scheme"

const disableTransitionsCSS = "*,*::before,*::after{" +
	"-webkit-transition:none!important;" +
	"-moz-transition:none!important;" +
	"-o-transition:none!important;" +
	"-ms-transition:none!important;" +
	"transition:none!important}"

// Apply writes the resolved theme to doc according to cfg. Applying the same
// theme twice leaves the document as applying it once.
func Apply(doc Document, t Theme, cfg Config, deferrer Deferrer, delay time.Duration) {
	if doc == nil || !t.Valid() {
		return
	}

	var styleID string
	if cfg.DisableTransitionOnChange {
		styleID = doc.InsertStyle(disableTransitionsCSS)
	}

	switch cfg.Mode {
	case ModeClass:
		applyClass(doc, t)
	case ModeBoth:
		applyClass(doc, t)
		doc.SetAttribute(cfg.Attribute, string(t))
	default:
		doc.SetAttribute(cfg.Attribute, string(t))
	}

	applyVariables(doc, t, cfg.Variables)

	if cfg.DisableColorScheme {
		doc.RemoveStyleProperty(colorSchemeProperty)
	} else {
		doc.SetStyleProperty(colorSchemeProperty, string(t))
	}

	if styleID != "" {
		doc.Reflow()
		if deferrer == nil {
			deferrer = TimerDeferrer
		}
		deferrer.AfterFunc(delay, func() {
			doc.RemoveStyle(styleID)
		})
	}
}

func applyClass(doc Document, t Theme) {
	doc.RemoveClass(string(Light), string(Dark))
	doc.AddClass(string(t))
}

func applyVariables(doc Document, t Theme, vars map[Theme]map[string]string) {
	if len(vars) == 0 {
		return
	}
	for _, kv := range vars {
		for k := range kv {
			doc.RemoveStyleProperty(k)
		}
	}
	for k, v := range vars[t] {
		doc.SetStyleProperty(k, v)
	}
}

// clearStale removes what prev wrote to doc that next will not overwrite: the
// theme classes when next stops using them, the old attribute when next uses
// a different one or none, and variables next does not declare.
func clearStale(doc Document, prev, next Config) {
	if doc == nil {
		return
	}
	if usesClass(prev.Mode) && !usesClass(next.Mode) {
		doc.RemoveClass(string(Light), string(Dark))
	}
	if usesAttribute(prev.Mode) && (!usesAttribute(next.Mode) || prev.Attribute != next.Attribute) {
		doc.RemoveAttribute(prev.Attribute)
	}
	for _, kv := range prev.Variables {
		for k := range kv {
			if !declares(next.Variables, k) {
				doc.RemoveStyleProperty(k)
			}
		}
	}
}

func usesClass(m Mode) bool {
	return m == ModeClass || m == ModeBoth
}

func usesAttribute(m Mode) bool {
	return m == ModeAttribute || m == ModeBoth
}

func declares(vars map[Theme]map[string]string, key string) bool {
	for _, kv := range vars {
		if _, ok := kv[key]; ok {
			return true
		}
	}
	return false
}
