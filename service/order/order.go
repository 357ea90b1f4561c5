// Package order provides the orderers used to arrange configurations waiting
// for an operation.
package order

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viant/opflow/model"
	"github.com/viant/toolbox"
)

// Orderer names
const (
	NameIdentity    = "identity"
	NameReverse     = "reverse"
	NameLexical     = "lexical"
	NameNumericAsc  = "numeric-asc"
	NameNumericDesc = "numeric-desc"
)

// Names returns the supported orderer names
func Names() []string {
	return []string{NameIdentity, NameReverse, NameLexical, NameNumericAsc, NameNumericDesc}
}

// New returns the orderer registered under name; an empty name selects
// identity.
func New(name string) (model.Orderer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameIdentity:
		return model.OrdererFunc(Identity), nil
	case NameReverse:
		return model.OrdererFunc(Reverse), nil
	case NameLexical:
		return model.OrdererFunc(Lexical), nil
	case NameNumericAsc:
		return model.OrdererFunc(NumericAsc), nil
	case NameNumericDesc:
		return model.OrdererFunc(NumericDesc), nil
	}
	return nil, fmt.Errorf("unsupported order: %q, expected one of %v", name, Names())
}

// Identity keeps admission order
func Identity(configs []string) []string {
	return configs
}

// Reverse reverses admission order
func Reverse(configs []string) []string {
	for i, j := 0, len(configs)-1; i < j; i, j = i+1, j-1 {
		configs[i], configs[j] = configs[j], configs[i]
	}
	return configs
}

// Lexical sorts configuration ids as strings
func Lexical(configs []string) []string {
	sort.Strings(configs)
	return configs
}

// NumericAsc sorts numeric configuration ids ascending.  Non-numeric ids
// follow the numeric ones in lexical order.
func NumericAsc(configs []string) []string {
	return numeric(configs, false)
}

// NumericDesc sorts numeric configuration ids descending.  Non-numeric ids
// follow the numeric ones in lexical order.
func NumericDesc(configs []string) []string {
	return numeric(configs, true)
}

type numericID struct {
	id      string
	value   int
	numeric bool
}

func numeric(configs []string, desc bool) []string {
	ids := make([]numericID, len(configs))
	for i, cfg := range configs {
		ids[i] = numericID{id: cfg}
		if value, err := toolbox.ToInt(strings.TrimSpace(cfg)); err == nil {
			ids[i].value = value
			ids[i].numeric = true
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.numeric != b.numeric {
			return a.numeric
		}
		if !a.numeric {
			return a.id < b.id
		}
		if desc {
			return a.value > b.value
		}
		return a.value < b.value
	})
	for i := range ids {
		configs[i] = ids[i].id
	}
	return configs
}
