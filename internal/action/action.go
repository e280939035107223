// Package action defines the closed set of effects a matched rule can
// produce and the dispatcher that executes them.
package action

import "fmt"

// Kind is the tag of an Action variant.
type Kind string

const (
	KindSetPlaceholder   Kind = "set_placeholder"
	KindSendMessage      Kind = "send_message"
	KindIncrementCounter Kind = "increment_counter"
	KindStopProcessing   Kind = "stop_processing"
)

// Action is a sealed sum type; the only implementations are the four
// variants below and Dispatcher.Execute switches over them exhaustively.
type Action interface {
	Kind() Kind
	isAction()
}

// SetPlaceholder renders Template and publishes it under Key.
type SetPlaceholder struct {
	Key      string
	Template *Template
}

// SendMessage renders Template and delivers it to the player in context.
type SendMessage struct {
	Template *Template
}

// IncrementCounter adds Amount (or the numeric value of AmountVar, when
// set) to the counter called Name. The counter belongs to the player in
// context unless Global is set.
type IncrementCounter struct {
	Name      *Template
	Amount    int64
	AmountVar string
	Global    bool
}

// StopProcessing halts evaluation of lower-priority rules.
type StopProcessing struct{}

func (SetPlaceholder) Kind() Kind   { return KindSetPlaceholder }
func (SendMessage) Kind() Kind      { return KindSendMessage }
func (IncrementCounter) Kind() Kind { return KindIncrementCounter }
func (StopProcessing) Kind() Kind   { return KindStopProcessing }

func (SetPlaceholder) isAction()   {}
func (SendMessage) isAction()      {}
func (IncrementCounter) isAction() {}
func (StopProcessing) isAction()   {}

func (a SetPlaceholder) String() string {
	return fmt.Sprintf("set_placeholder(%s, %q)", a.Key, a.Template.Source())
}

func (a SendMessage) String() string {
	return fmt.Sprintf("send_message(%q)", a.Template.Source())
}

func (a IncrementCounter) String() string {
	amount := fmt.Sprint(a.Amount)
	if a.AmountVar != "" {
		amount = a.AmountVar
	}
	scope := "player"
	if a.Global {
		scope = "global"
	}
	return fmt.Sprintf("increment_counter(%s, %s, %s)", a.Name.Source(), amount, scope)
}

func (StopProcessing) String() string { return "stop_processing" }

// HasStop reports whether actions contain a StopProcessing.
func HasStop(actions []Action) bool {
	for _, a := range actions {
		if _, ok := a.(StopProcessing); ok {
			return true
		}
	}
	return false
}

// PlaceholderKeys returns the keys of every SetPlaceholder in actions.
func PlaceholderKeys(actions []Action) []string {
	var keys []string
	for _, a := range actions {
		if sp, ok := a.(SetPlaceholder); ok {
			keys = append(keys, sp.Key)
		}
	}
	return keys
}

// Vars returns the variable names a renders or reads.
func Vars(a Action) []string {
	switch act := a.(type) {
	case SetPlaceholder:
		return act.Template.Vars()
	case SendMessage:
		return act.Template.Vars()
	case IncrementCounter:
		vars := act.Name.Vars()
		if act.AmountVar != "" {
			vars = append(vars, act.AmountVar)
		}
		return vars
	}
	return nil
}
