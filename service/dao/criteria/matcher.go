package criteria

import (
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
)

// Match returns true when the report satisfies every parameter.
func Match(report *model.Report, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		var actual string
		switch parameter.Name {
		case "State":
			actual = string(report.State)
		case "Operation":
			actual = report.Operation
		default:
			continue
		}
		if !matches(actual, parameter.Value) {
			return false
		}
	}
	return true
}

func matches(actual string, expected interface{}) bool {
	switch value := expected.(type) {
	case string:
		return actual == value
	case []string:
		for _, candidate := range value {
			if actual == candidate {
				return true
			}
		}
		return false
	}
	return true
}
