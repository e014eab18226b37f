package mutable_test

import (
	"fmt"

	"github.com/nnsuite/nnpipe/mutable"
)

type gate struct {
	mutable.Context
	open bool
}

func (g *gate) SetOpen(open bool) mutable.Mutation {
	return g.Mutate(func() error {
		g.open = open
		return nil
	})
}

func Example() {
	g := &gate{Context: mutable.Mutable()}
	m := g.SetOpen(true)
	fmt.Println(g.open)

	// element goroutine applies the mutation before the next buffer
	var pending mutable.Mutations
	pending = pending.Put(m)
	_ = pending.ApplyTo(g.Context)
	fmt.Println(g.open)

	// Output:
	// false
	// true
}
