package rules_test

import (
	"testing"

	"github.com/seantiz/anvil/internal/rules"
)

func TestBuildValidCatalogue(t *testing.T) {
	cat := &rules.Catalogue{}
	cat.Register(rules.Task{Name: "sources", Product: "Sources", Params: []rules.TypeID{"Address"}})
	cat.Register(rules.Task{Name: "compile", Product: "Compiled", Params: []rules.TypeID{"Sources"}})

	rg, err := rules.Build(cat, []rules.TypeID{"Address"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rg.Len() != 2 {
		t.Errorf("Len = %d, want 2", rg.Len())
	}
	if got := rg.TasksFor("Compiled"); len(got) != 1 || got[0].Name != "compile" {
		t.Errorf("TasksFor(Compiled) = %v", got)
	}
}

func TestBuildRejectsUnsatisfiableParam(t *testing.T) {
	cat := &rules.Catalogue{}
	cat.Register(rules.Task{Name: "compile", Product: "Compiled", Params: []rules.TypeID{"Sources"}})

	if _, err := rules.Build(cat, []rules.TypeID{"Address"}); err == nil {
		t.Fatal("Build with unsatisfiable param succeeded")
	}
}

func TestBuildRejectsAnonymousTask(t *testing.T) {
	cat := &rules.Catalogue{}
	cat.Register(rules.Task{Product: "Compiled"})

	if _, err := rules.Build(cat, nil); err == nil {
		t.Fatal("Build with unnamed task succeeded")
	}
}
