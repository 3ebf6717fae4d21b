package domain

// Action is the result of a tool-facing operation. The concrete type tells
// the caller what happened; switch on it instead of inspecting strings.
type Action interface {
	action()
}

// CardUpdated reports that a card record was changed
type CardUpdated struct {
	Card Card
}

// Navigated reports that a card was selected for display
type Navigated struct {
	ProjectID string
	CardID    string
}

// GenerationStarted reports an accepted generation request
type GenerationStarted struct {
	ProjectID string
	CardID    string
	Count     int
	Prompt    string
}

func (CardUpdated) action()       {}
func (Navigated) action()         {}
func (GenerationStarted) action() {}
