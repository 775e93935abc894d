package internal

import (
	"fmt"
	"strings"
)

// InstructionKind is the tag of an instruction variant.
type InstructionKind int

// Instruction kinds
const (
	InstructionLiteral InstructionKind = iota
	InstructionExpression
	InstructionStatement
)

// Instruction kind names
const (
	InstructionNameLiteral    = "literal"
	InstructionNameExpression = "expression"
	InstructionNameStatement  = "statement"
)

var instructionNames = map[InstructionKind]string{
	InstructionLiteral:    InstructionNameLiteral,
	InstructionExpression: InstructionNameExpression,
	InstructionStatement:  InstructionNameStatement,
}

// String returns the string representation of the instruction kind
func (k InstructionKind) String() string {
	if name, ok := instructionNames[k]; ok {
		return name
	}
	return InstructionNameLiteral
}

// MarshalText implements encoding.TextMarshaler.
func (k InstructionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *InstructionKind) UnmarshalText(text []byte) error {
	for kind, name := range instructionNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown instruction kind %q", string(text))
}

// Instruction is one step of a compiled program.
type Instruction struct {
	Kind    InstructionKind `json:"kind"`
	Text    string          `json:"text"`
	Raw     bool            `json:"raw,omitempty"`
	Role    Role            `json:"role,omitempty"`
	Keyword string          `json:"keyword,omitempty"`
	Inline  bool            `json:"inline,omitempty"`
	Indent  int             `json:"indent,omitempty"` // columns relative to a multi-line fragment's base
	Multi   bool            `json:"multi,omitempty"`  // line of a multi-line fragment
	Line    int             `json:"line"`
	Depth   int             `json:"depth"`
}

// Program is the immutable instruction sequence compiled from one template.
type Program struct {
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
}

// Dump returns a readable listing of the program.
func (p *Program) Dump() string {
	var sb strings.Builder
	for i, inst := range p.Instructions {
		fmt.Fprintf(&sb, "%04d L%-4d %s%-10s", i, inst.Line, strings.Repeat(IndentUnit, inst.Depth), inst.Kind)
		switch inst.Kind {
		case InstructionLiteral:
			fmt.Fprintf(&sb, " %q", inst.Text)
		case InstructionExpression:
			if inst.Raw {
				sb.WriteString(" raw")
			}
			fmt.Fprintf(&sb, " %s", inst.Text)
		default:
			fmt.Fprintf(&sb, " %s%s", strings.Repeat(" ", inst.Indent), inst.Text)
			if inst.Role != RolePlain {
				fmt.Fprintf(&sb, "  [%s", inst.Role)
				if inst.Inline {
					sb.WriteString(" inline")
				}
				sb.WriteString("]")
			}
		}
		sb.WriteByte(CharNewline)
	}
	return sb.String()
}
