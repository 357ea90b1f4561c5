package dao

import "github.com/viant/opflow/model"

// Parameter narrows List results; supported names are "State" and
// "Operation".
type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// WithState matches reports in any of the supplied states.
func WithState(states ...model.State) *Parameter {
	values := make([]string, 0, len(states))
	for _, state := range states {
		values = append(values, string(state))
	}
	return NewParameter("State", values...)
}

// WithOperation matches reports of the supplied operation.
func WithOperation(operation string) *Parameter {
	return NewParameter("Operation", operation)
}
