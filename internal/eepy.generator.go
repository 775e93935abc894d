package internal

import (
	"errors"

	"go.uber.org/zap"
)

// Compile tokenizes and analyzes template source into a program.
// Compile errors carry the template name, line and a source excerpt.
func Compile(name, source string, logger *zap.Logger) (*Program, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgCompileStart, zap.String(LogFieldTemplate, name))

	source = NormalizeNewlines(source)
	prog, err := generate(name, source, logger)
	if err != nil {
		var cerr *CompileError
		if errors.As(err, &cerr) {
			cerr.Template = name
			cerr.Excerpt = Excerpt(source, cerr.Line, DefaultExcerptLines)
		}
		return nil, err
	}

	logger.Debug(LogMsgCompileEnd,
		zap.String(LogFieldTemplate, name),
		zap.Int(LogFieldInstructions, len(prog.Instructions)))
	return prog, nil
}

func generate(name, source string, logger *zap.Logger) (*Program, error) {
	lexer := NewLexer(source, logger)
	analyzer := NewAnalyzer(logger)
	prog := &Program{Name: name}

	for {
		tok, ok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		if tok.Text != "" {
			prog.Instructions = append(prog.Instructions, Instruction{
				Kind:  InstructionLiteral,
				Text:  tok.Text,
				Line:  tok.TextLine,
				Depth: analyzer.Depth(),
			})
		}
		if tok.Fragment == nil {
			continue
		}

		switch tok.Fragment.Kind {
		case FragmentExpression:
			inst, err := analyzer.Expression(tok.Fragment)
			if err != nil {
				return nil, err
			}
			prog.Instructions = append(prog.Instructions, inst)
		default:
			insts, err := analyzer.Statement(tok.Fragment)
			if err != nil {
				return nil, err
			}
			prog.Instructions = append(prog.Instructions, insts...)
		}
	}

	return prog, nil
}
