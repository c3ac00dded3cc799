package agent

import "strings"

// Model is a chat model the server can be asked to use.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var models = []Model{
	{ID: "Gemini 3 Pro", Name: "Gemini 3 Pro"},
	{ID: "GPT-4o", Name: "GPT-4o"},
	{ID: "Claude 3.5", Name: "Claude 3.5"},
}

// Models returns the models offered for selection.
func Models() []Model {
	return append([]Model(nil), models...)
}

// ResolveModel maps user input to a model id. Matching is case-insensitive
// on id or name; unknown names are passed through unchanged so newer server
// models stay usable. "default" and "" select the server default.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "default") {
		return ""
	}
	for _, m := range models {
		if strings.EqualFold(m.ID, name) || strings.EqualFold(m.Name, name) {
			return m.ID
		}
	}
	return name
}
