package authorization

import "fmt"

// Action is one kind of operation a grant can authorise. The set is
// closed; extending it requires a coordinated change across providers.
type Action string

const (
	// ActionProduce authorises publishing messages to a topic.
	ActionProduce Action = "produce"

	// ActionConsume authorises subscribing to and reading from a topic.
	ActionConsume Action = "consume"

	// ActionFunctions authorises administrative function operations on a
	// namespace.
	ActionFunctions Action = "functions"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionProduce, ActionConsume, ActionFunctions:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown auth action %q", s)
	}
}

// ParseActions validates a list of action strings, rejecting the whole
// list on the first unknown entry.
func ParseActions(raw []string) ([]Action, error) {
	actions := make([]Action, 0, len(raw))
	for _, s := range raw {
		action, err := ParseAction(s)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// ParseActionsLenient converts stored action strings, dropping entries
// that are no longer recognised instead of failing the whole read.
func ParseActionsLenient(raw []string) []Action {
	actions := make([]Action, 0, len(raw))
	for _, s := range raw {
		action, err := ParseAction(s)
		if err != nil {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

// ActionStrings converts actions back to their string form for storage.
func ActionStrings(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, action := range actions {
		out = append(out, string(action))
	}
	return out
}
