package model

import (
	"context"
	"fmt"
)

// Linear is intercept + coef·x.
type Linear struct {
	Coef      []float64
	Intercept float64
	name      string
}

func (m *Linear) Type() string { return m.name }

func (m *Linear) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != len(m.Coef) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), len(m.Coef))
	}
	return m.Intercept + dot(m.Coef, x), nil
}

// Polynomial expands the input into polynomial terms and applies a linear
// model to them. Terms are ordered by degree, then by the
// combinations-with-replacement order of feature indices.
type Polynomial struct {
	Degree          int
	InteractionOnly bool
	IncludeBias     bool
	Coef            []float64
	Intercept       float64
	terms           [][]int
	name            string
}

func newPolynomial(nIn, degree int, interactionOnly, includeBias bool, coef []float64, intercept float64, name string) (*Polynomial, error) {
	if degree < 1 {
		return nil, fmt.Errorf("polynomial degree must be at least 1, got %d", degree)
	}
	terms := polynomialTerms(nIn, degree, interactionOnly, includeBias)
	if len(coef) != len(terms) {
		return nil, fmt.Errorf("polynomial of degree %d over %d features has %d terms, coef has %d",
			degree, nIn, len(terms), len(coef))
	}
	return &Polynomial{
		Degree:          degree,
		InteractionOnly: interactionOnly,
		IncludeBias:     includeBias,
		Coef:            coef,
		Intercept:       intercept,
		terms:           terms,
		name:            name,
	}, nil
}

func (m *Polynomial) Type() string { return m.name }

// Expand returns the polynomial terms of x.
func (m *Polynomial) Expand(x []float64) []float64 {
	out := make([]float64, len(m.terms))
	for i, term := range m.terms {
		v := 1.0
		for _, f := range term {
			v *= x[f]
		}
		out[i] = v
	}
	return out
}

func (m *Polynomial) Predict(_ context.Context, x []float64) (float64, error) {
	if n := polynomialInputs(m.terms); len(x) != n {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), n)
	}
	return m.Intercept + dot(m.Coef, m.Expand(x)), nil
}

// polynomialTerms lists the feature index combinations of every term.
// The empty combination is the bias term.
func polynomialTerms(n, degree int, interactionOnly, includeBias bool) [][]int {
	var terms [][]int
	if includeBias {
		terms = append(terms, []int{})
	}
	for d := 1; d <= degree; d++ {
		combo := make([]int, d)
		var walk func(pos, start int)
		walk = func(pos, start int) {
			if pos == d {
				terms = append(terms, append([]int(nil), combo...))
				return
			}
			for i := start; i < n; i++ {
				combo[pos] = i
				next := i
				if interactionOnly {
					next = i + 1
				}
				walk(pos+1, next)
			}
		}
		walk(0, 0)
	}
	return terms
}

// polynomialInputs recovers the input dimension from the degree-1 terms.
func polynomialInputs(terms [][]int) int {
	n := 0
	for _, t := range terms {
		if len(t) == 1 {
			n++
		}
	}
	return n
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
