package cmd

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type named struct {
	name string
	ran  *[]string
}

func (n named) Name() string        { return n.name }
func (n named) Description() string { return "test command " + n.name }
func (n named) Run(_ context.Context, inv *Invocation) error {
	*n.ran = append(*n.ran, n.name)
	if len(inv.Args) > 0 && inv.Args[0] == "fail" {
		return errors.New("failed")
	}
	return nil
}

func tag(label string, trail *[]string) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			*trail = append(*trail, label)
			return c.Run(ctx, inv)
		})
	}
}

func TestRegistry(t *testing.T) {
	var ran []string
	r := NewRegistry()
	r.Register(named{name: "stop", ran: &ran})
	r.Register(named{name: "play", ran: &ran})

	if r.Get("skip") != nil {
		t.Error("Get found an unregistered command")
	}
	var names []string
	for _, c := range r.GetAll() {
		names = append(names, c.Name())
	}
	if !slices.Equal(names, []string{"play", "stop"}) {
		t.Errorf("GetAll = %v", names)
	}
}

func TestApplyOrderAndRoot(t *testing.T) {
	var trail []string
	inner := named{name: "play", ran: &trail}
	c := Apply(inner, tag("first", &trail), tag("second", &trail))

	if err := c.Run(context.Background(), &Invocation{}); err != nil {
		t.Fatal(err)
	}
	// the last middleware applied is the outermost
	if !slices.Equal(trail, []string{"second", "first", "play"}) {
		t.Errorf("trail = %v", trail)
	}
	if c.Name() != "play" || c.Description() != inner.Description() {
		t.Errorf("wrapped identity = %q %q", c.Name(), c.Description())
	}
	if Root(c) != Command(inner) {
		t.Error("Root did not reach the inner command")
	}
	if err := c.Run(context.Background(), &Invocation{Args: []string{"fail"}}); err == nil {
		t.Error("error from the inner command was swallowed")
	}
}
