package internal

import (
	"fmt"
	"sort"
)

type Kind uint8

const (
	HostRoot Kind = iota
	HostComponent
	HostText
	FunctionComponent
	StatefulComponent
	Fragment
	HostPortal
	ErrorBoundary
	SuspenseBoundary
	ContextProvider
	ContextConsumer
)

var kindNames = [...]string{
	HostRoot:          "HostRoot",
	HostComponent:     "HostComponent",
	HostText:          "HostText",
	FunctionComponent: "FunctionComponent",
	StatefulComponent: "StatefulComponent",
	Fragment:          "Fragment",
	HostPortal:        "HostPortal",
	ErrorBoundary:     "ErrorBoundary",
	SuspenseBoundary:  "SuspenseBoundary",
	ContextProvider:   "ContextProvider",
	ContextConsumer:   "ContextConsumer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Props are the attributes of a host element.
type Props map[string]any

// Element is an immutable description of what a subtree should look like.
// Identity of the pointer is what the walker compares to decide whether a
// node's input changed.
type Element struct {
	Kind Kind

	// Type is the host tag (string), *ComponentType, *StatefulType or
	// *ContextType depending on Kind.
	Type any

	Key   string
	Props any
	Ref   *Ref
	Text  string

	Children []*Element
}

// ComponentType is a named render function. The render function receives
// the props it was created with and returns at most one element.
type ComponentType struct {
	Name   string
	Render func(s *Scope, props any) (*Element, error)
}

// ErrorBoundaryProps configures an error boundary. Fallback is rendered
// in place of the children once an error has been captured; calling reset
// clears the error and retries the children.
type ErrorBoundaryProps struct {
	Fallback func(err error, reset func()) *Element
	OnError  func(err error)
}

type SuspenseProps struct {
	Fallback *Element
}

type PortalProps struct {
	Container any
}

type ProviderProps struct {
	Value any
}

type ConsumerProps struct {
	Render func(value any) *Element
}

// Ref holds a handle to a committed host instance or stateful instance.
type Ref struct {
	Current any
}

func (e *Element) String() string {
	if e == nil {
		return "<nil>"
	}
	name := typeName(e.Kind, e.Type)
	if e.Key != "" {
		return fmt.Sprintf("%s[%s]", name, e.Key)
	}
	return name
}

func typeName(kind Kind, typ any) string {
	switch t := typ.(type) {
	case string:
		return t
	case *ComponentType:
		return t.Name
	case *StatefulType:
		return t.Name
	case *ContextType:
		return t.Name + ".Provider"
	}
	return kind.String()
}

func hostProps(el *Element) Props {
	if el == nil {
		return nil
	}
	props, _ := el.Props.(Props)
	return props
}

func hostText(el *Element) string {
	if el == nil {
		return ""
	}
	return el.Text
}

// PropChange is one entry of a Patch. Removed entries carry no value.
type PropChange struct {
	Key     string
	Value   any
	Removed bool
}

// Patch is the ordered list of attribute changes to apply to a host instance.
type Patch []PropChange

// diffProps returns the changes turning old into new, sorted by key.
func diffProps(old, new Props) Patch {
	var patch Patch

	for k, v := range new {
		if prev, ok := old[k]; ok && isEqual(prev, v) {
			continue
		}
		patch = append(patch, PropChange{Key: k, Value: v})
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			patch = append(patch, PropChange{Key: k, Removed: true})
		}
	}

	sort.Slice(patch, func(i, j int) bool { return patch[i].Key < patch[j].Key })
	return patch
}
