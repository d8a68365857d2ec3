package loom_test

import (
	"fmt"

	"github.com/AnatoleLucet/loom"
	"github.com/AnatoleLucet/loom/internal/memhost"
)

func Example() {
	host := memhost.New()
	container := host.NewContainer("app")
	root := loom.NewRoot(loom.NewScheduler(), host, container, loom.DefaultConfig())

	var increment func(int)
	counter := loom.NewComponent("Counter", func(s *loom.Scope, label string) (*loom.Element, error) {
		n, dispatch := loom.UseReducer(s, func(n, by int) int { return n + by }, 0)
		increment = dispatch
		return loom.H("p", nil, loom.Text(fmt.Sprintf("%s: %d", label, n))), nil
	})

	if err := root.Render(loom.C(counter, "clicks")); err != nil {
		panic(err)
	}
	fmt.Println(host.String(container))

	_ = root.Batch(func() {
		increment(1)
		increment(1)
		increment(1)
	})
	fmt.Println(host.String(container))

	// Output:
	// <p>clicks: 0</p>
	// <p>clicks: 3</p>
}
