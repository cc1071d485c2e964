// Package node defines the contract between this pack's processing nodes and
// the graph-execution host: typed input/output declarations, the argument map
// a node is invoked with, progress reporting, and the node registry.
package node

import (
	"context"
)

// ValueType identifies the wire type of a node input or output.
type ValueType string

const (
	TypeImage   ValueType = "IMAGE"
	TypeInt     ValueType = "INT"
	TypeFloat   ValueType = "FLOAT"
	TypeBoolean ValueType = "BOOLEAN"
	TypeString  ValueType = "STRING"
	TypeEnum    ValueType = "ENUM"
)

// InputSpec declares one typed node input with its default and constraints.
// Min/Max/Step apply to INT and FLOAT inputs; Choices applies to ENUM inputs.
type InputSpec struct {
	Name    string    `json:"name"`
	Type    ValueType `json:"type"`
	Default any       `json:"default,omitempty"`
	Min     float64   `json:"min,omitempty"`
	Max     float64   `json:"max,omitempty"`
	Step    float64   `json:"step,omitempty"`
	Choices []string  `json:"choices,omitempty"`
}

// OutputSpec declares one typed node output.
type OutputSpec struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Spec is the host-visible declaration of a node: its type name, display
// metadata, and typed inputs and outputs.
type Spec struct {
	Type        string       `json:"type"`
	DisplayName string       `json:"display_name"`
	Category    string       `json:"category"`
	Inputs      []InputSpec  `json:"inputs"`
	Outputs     []OutputSpec `json:"outputs"`
}

// Input returns the input declaration with the given name.
func (s Spec) Input(name string) (InputSpec, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

// Progress receives synchronous completion ticks from a running node. The
// host renders these as a progress bar; they are not a cancellation channel.
type Progress interface {
	Begin(total int)
	Advance(n int)
}

// NopProgress discards all ticks.
type NopProgress struct{}

func (NopProgress) Begin(total int) {}
func (NopProgress) Advance(n int)   {}

// Runtime carries the host facilities a node may use while running.
type Runtime struct {
	Progress  Progress
	OutputDir string
}

// NewRuntime returns a Runtime with a no-op progress reporter.
func NewRuntime(outputDir string) *Runtime {
	return &Runtime{Progress: NopProgress{}, OutputDir: outputDir}
}

// Node is one processing node. The host calls Run with an argument map
// matching the declared inputs; Run returns one value per declared output,
// in declaration order.
type Node interface {
	Spec() Spec
	Run(ctx context.Context, rt *Runtime, args Args) ([]any, error)
}
