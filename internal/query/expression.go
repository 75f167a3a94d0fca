package query

import (
	"fmt"
	"strings"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// Operator joins two predicates of an expression.
type Operator int

const (
	And Operator = iota
	Or
)

func (o Operator) String() string {
	if o == Or {
		return "OR"
	}
	return "AND"
}

// Expression chains predicates with AND/OR, evaluated left to right with
// uniform precedence. The whole chain applies to a single Values row.
type Expression struct {
	predicates []*Predicate
	operators  []Operator
}

// NewExpression starts an expression with its first predicate.
func NewExpression(first *Predicate) *Expression {
	return &Expression{predicates: []*Predicate{first}}
}

// AddPredicate appends p, joined to the chain by op.
func (e *Expression) AddPredicate(p *Predicate, op Operator) *Expression {
	e.predicates = append(e.predicates, p)
	e.operators = append(e.operators, op)
	return e
}

// Predicates returns the predicates in chain order.
func (e *Expression) Predicates() []*Predicate { return e.predicates }

// Operators returns the connecting operators in chain order.
func (e *Expression) Operators() []Operator { return e.operators }

// Validate checks the arity of the chain and every predicate.
func (e *Expression) Validate() error {
	if len(e.predicates) == 0 {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "query: expression has no predicates")
	}
	if len(e.predicates) != len(e.operators)+1 {
		return storeerrors.Wrap(storeerrors.ErrCategoryConfiguration, storeerrors.CodeArityMismatch,
			fmt.Sprintf("query: expression has %d predicates and %d operators", len(e.predicates), len(e.operators)),
			storeerrors.ErrArityMismatch)
	}
	for i, p := range e.predicates {
		if p == nil {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: predicate %d is nil", i))
		}
		if !p.Match.Valid() {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: predicate %d has unknown match type %d", i, p.Match))
		}
		if p.Column < ColumnKey || p.Column > ColumnValue {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: predicate %d has unknown column %d", i, p.Column))
		}
	}
	for i, op := range e.operators {
		if op != And && op != Or {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: operator %d is unknown", i))
		}
	}
	return nil
}

func (e *Expression) String() string {
	var b strings.Builder
	for i, p := range e.predicates {
		if i > 0 && i-1 < len(e.operators) {
			b.WriteString(" " + e.operators[i-1].String() + " ")
		}
		b.WriteString("(" + p.String() + ")")
	}
	return b.String()
}

func (e *Expression) describe() map[string]any {
	preds := make([]any, len(e.predicates))
	for i, p := range e.predicates {
		if p != nil {
			preds[i] = p.describe()
		}
	}
	ops := make([]string, len(e.operators))
	for i, op := range e.operators {
		ops[i] = op.String()
	}
	return map[string]any{"predicates": preds, "operators": ops}
}

// JSONDescription renders the expression as indented JSON.
func (e *Expression) JSONDescription() (string, error) {
	return describeJSON(e.describe())
}
