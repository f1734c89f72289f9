package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// Ref is a component field that is either an inline value or a "$name"
// reference into the components registry.
type Ref[T any] struct {
	Name   string
	Inline *T
}

// Named returns a reference to the registry entry name.
func Named[T any](name string) Ref[T] { return Ref[T]{Name: name} }

// InlineRef wraps an inline value.
func InlineRef[T any](v T) Ref[T] { return Ref[T]{Inline: &v} }

// IsZero reports whether the field was left out.
func (r Ref[T]) IsZero() bool { return r.Name == "" && r.Inline == nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Ref[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		name, ok := strings.CutPrefix(node.Value, "$")
		if !ok || name == "" {
			return fmt.Errorf("line %d: component reference must look like $name, got %q", node.Line, node.Value)
		}
		*r = Ref[T]{Name: name}
		return nil
	}
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	*r = Ref[T]{Inline: &v}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Ref[T]) MarshalYAML() (any, error) {
	if r.Inline != nil {
		return *r.Inline, nil
	}
	if r.Name != "" {
		return "$" + r.Name, nil
	}
	return nil, nil
}

// resolve returns the inline value, the registry entry named by the
// reference, or the entry named fallback when the field is empty.
func resolve[T any](kind string, r Ref[T], registry map[string]T, fallback string) (T, error) {
	if r.Inline != nil {
		return *r.Inline, nil
	}
	name := r.Name
	if name == "" {
		name = fallback
	}
	v, ok := registry[name]
	if !ok {
		var zero T
		return zero, amerrors.Newf(amerrors.ErrCodeUnknownComponent, "unknown %s component $%s", kind, name).
			WithDetail("kind", kind).
			WithDetail("name", name).
			WithSuggestion(fmt.Sprintf("Define it under components.%s in pkms.yaml", kind))
	}
	return v, nil
}
