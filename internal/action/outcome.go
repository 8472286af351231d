package action

// Observation is the already-structured page state reported by an executor.
type Observation struct {
	URL          string   `json:"url"`
	Title        string   `json:"title,omitempty"`
	SearchInputs []string `json:"search_inputs,omitempty"`
	Buttons      int      `json:"buttons"`
	Links        int      `json:"links"`
	Text         string   `json:"text,omitempty"`
}

// HasSearchInputs reports whether any search field was detected on the page.
func (o *Observation) HasSearchInputs() bool {
	return o != nil && len(o.SearchInputs) > 0
}

// Outcome is what an executor returns for a single action.
type Outcome struct {
	OK          bool         `json:"ok"`
	Result      string       `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	Data        []string     `json:"data,omitempty"`
	Observation *Observation `json:"observation,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(result string, obs *Observation) Outcome {
	return Outcome{OK: true, Result: result, Observation: obs}
}

// Failed builds a failed outcome carrying msg.
func Failed(msg string, obs *Observation) Outcome {
	return Outcome{OK: false, Error: msg, Observation: obs}
}
