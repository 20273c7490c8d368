// Package rlmtypes holds the shared data model for the RLM runtime: the
// primitive types passed between the classifier, predict layer, sandbox,
// epistemic verifier, adversarial validator, proof cascade, trace graph, and
// spec-link index. It exists to keep those packages free of import cycles.
// Its Fact type converts to a Mangle atom; internal/mangle's Engine uses
// its own Fact type rather than this one.
package rlmtypes

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"
)

// MangleAtom represents a Mangle name constant (starting with /).
// This explicit type avoids ambiguity between strings and atoms.
type MangleAtom string

// Fact represents a single logical fact (atom) in the EDB.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// String returns the Datalog string representation of the fact.
func (f Fact) String() string {
	var args []string
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case MangleAtom:
			args = append(args, string(v))
		case string:
			if strings.HasPrefix(v, "/") {
				args = append(args, v)
			} else {
				args = append(args, fmt.Sprintf("%q", v))
			}
		case int:
			args = append(args, fmt.Sprintf("%d", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case float64:
			args = append(args, fmt.Sprintf("%f", v))
		case bool:
			if v {
				args = append(args, "/true")
			} else {
				args = append(args, "/false")
			}
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// ToAtom converts a Fact to a Mangle AST Atom for direct store insertion.
func (f Fact) ToAtom() (ast.Atom, error) {
	var terms []ast.BaseTerm
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case MangleAtom:
			c, err := ast.Name(string(v))
			if err != nil {
				return ast.Atom{}, err
			}
			terms = append(terms, c)
		case string:
			if strings.HasPrefix(v, "/") {
				c, err := ast.Name(v)
				if err != nil {
					return ast.Atom{}, err
				}
				terms = append(terms, c)
			} else {
				terms = append(terms, ast.String(v))
			}
		case int:
			terms = append(terms, ast.Number(int64(v)))
		case int64:
			terms = append(terms, ast.Number(v))
		case float64:
			// Mangle's comparison operators work over integers; floats in
			// [0,1] are the overwhelmingly common case here (probabilities,
			// confidences) so they are rescaled to a 0-100 integer scale,
			// everything else is truncated.
			if v >= 0.0 && v <= 1.0 {
				terms = append(terms, ast.Number(int64(v*100)))
			} else {
				terms = append(terms, ast.Number(int64(v)))
			}
		case bool:
			if v {
				terms = append(terms, ast.TrueConstant)
			} else {
				terms = append(terms, ast.FalseConstant)
			}
		default:
			terms = append(terms, ast.String(fmt.Sprintf("%v", v)))
		}
	}

	return ast.NewAtom(f.Predicate, terms...), nil
}

// KernelFact is the interface-friendly mirror of Fact used at package
// boundaries that should not import the mangle AST package directly.
type KernelFact struct {
	Predicate string
	Args      []interface{}
}

// ToFact converts a KernelFact to a Fact.
func (kf KernelFact) ToFact() Fact {
	return Fact{Predicate: kf.Predicate, Args: kf.Args}
}

// Kernel describes a fact store over KernelFact values. No type in this
// module implements it; the proof cascade and the spec-link index call
// *mangle.Engine's own Assert methods.
type Kernel interface {
	AssertFact(fact KernelFact) error
	QueryPredicate(predicate string) ([]KernelFact, error)
	QueryBool(predicate string) bool
	RetractFact(fact KernelFact) error
}
