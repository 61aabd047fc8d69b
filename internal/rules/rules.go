// Package rules holds the task catalogue and the rule graph derived from it
// at engine construction. The derivation runs exactly once and validates
// that every product a task consumes is either produced by another task or
// supplied as a root subject type.
package rules

import (
	"context"
	"fmt"
	"sort"
)

// TypeID names a product type in the rule graph.
type TypeID string

// TypeRegistry maps external type names to TypeIDs. Immutable after engine
// construction.
type TypeRegistry map[string]TypeID

// TaskFunc computes a task's product. The call argument is the invocation
// context of the requesting node (concretely a core.Context); task functions
// assert the capabilities they need from it.
type TaskFunc func(ctx context.Context, call any, subject string) (any, error)

// Task declares one rule: a product computed from parameter products.
type Task struct {
	Name    string
	Product TypeID
	Params  []TypeID
	Func    TaskFunc
}

// Catalogue is the set of registered tasks.
type Catalogue struct {
	tasks []Task
}

// Register adds a task to the catalogue.
func (c *Catalogue) Register(t Task) {
	c.tasks = append(c.tasks, t)
}

// Tasks returns the registered tasks in registration order.
func (c *Catalogue) Tasks() []Task {
	return c.tasks
}

// RuleGraph indexes validated tasks by product. Immutable after Build.
type RuleGraph struct {
	byProduct map[TypeID][]Task
	roots     []TypeID
}

// Build derives and validates the rule graph from the catalogue and the root
// subject types. Called once at engine construction; failures are
// construction failures.
func Build(cat *Catalogue, rootSubjectTypes []TypeID) (*RuleGraph, error) {
	if cat == nil {
		return nil, fmt.Errorf("nil task catalogue")
	}

	byProduct := make(map[TypeID][]Task)
	for _, t := range cat.tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("task producing %q has no name", t.Product)
		}
		if t.Product == "" {
			return nil, fmt.Errorf("task %q has no product type", t.Name)
		}
		byProduct[t.Product] = append(byProduct[t.Product], t)
	}

	rootSet := make(map[TypeID]bool, len(rootSubjectTypes))
	for _, r := range rootSubjectTypes {
		rootSet[r] = true
	}

	// Every parameter must be satisfiable: produced by some task or supplied
	// as a root subject.
	for _, t := range cat.tasks {
		for _, p := range t.Params {
			if _, produced := byProduct[p]; !produced && !rootSet[p] {
				return nil, fmt.Errorf("task %q parameter %q is not produced by any task or root subject type", t.Name, p)
			}
		}
	}

	roots := append([]TypeID(nil), rootSubjectTypes...)
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return &RuleGraph{byProduct: byProduct, roots: roots}, nil
}

// TasksFor returns the tasks producing the given product type.
func (rg *RuleGraph) TasksFor(product TypeID) []Task {
	return rg.byProduct[product]
}

// Roots returns the root subject types, sorted.
func (rg *RuleGraph) Roots() []TypeID {
	return rg.roots
}

// Len reports the number of distinct products.
func (rg *RuleGraph) Len() int {
	return len(rg.byProduct)
}
