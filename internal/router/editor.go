package router

import (
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
)

// editorTable covers code submission, buffer storage and the buffer
// transforms.  Buffer text is repaired to valid UTF-8 by Args.String.
func editorTable(rt runtime.Runtime) Table {
	return Table{
		"/run-code": func(_ string, args transport.Args) error {
			code, err := args.String(0)
			if err != nil {
				return err
			}
			return rt.Evaluate(code, runtime.EvalOptions{})
		},

		"/save-and-run-buffer": func(_ string, args transport.Args) error {
			s, err := texts(args, 0, 3)
			if err != nil {
				return err
			}
			id, code, workspace := s[0], s[1], s[2]
			if err := rt.SaveBuffer(id, code); err != nil {
				return err
			}
			return rt.Evaluate(code, runtime.EvalOptions{Workspace: workspace})
		},

		"/save-buffer": func(_ string, args transport.Args) error {
			s, err := texts(args, 0, 2)
			if err != nil {
				return err
			}
			return rt.SaveBuffer(s[0], s[1])
		},

		"/load-buffer": func(_ string, args transport.Args) error {
			id, err := args.String(0)
			if err != nil {
				return err
			}
			return rt.LoadBuffer(id)
		},

		"/buffer-newline-and-indent": cursorOp(rt.ReindentAfterNewline),
		"/buffer-beautify":           cursorOp(rt.Beautify),

		"/buffer-section-complete-snippet-or-indent-selection": selectionOp(rt.IndentOrCompleteSnippet),
		"/buffer-indent-selection":                             selectionOp(rt.IndentSelection),
		"/buffer-section-toggle-comment":                       selectionOp(rt.ToggleComment),
	}
}

// cursorOp adapts a transform taking (id, buf, line, index, first line).
func cursorOp(fn func(id, buf string, line, index, firstLine int) error) HandlerFunc {
	return func(_ string, args transport.Args) error {
		s, err := texts(args, 0, 2)
		if err != nil {
			return err
		}
		n, err := ints(args, 2, 3)
		if err != nil {
			return err
		}
		return fn(s[0], s[1], n[0], n[1], n[2])
	}
}

// selectionOp adapts a transform taking (id, buf, start, finish, line,
// index).
func selectionOp(fn func(id, buf string, sel runtime.Selection) error) HandlerFunc {
	return func(_ string, args transport.Args) error {
		s, err := texts(args, 0, 2)
		if err != nil {
			return err
		}
		n, err := ints(args, 2, 4)
		if err != nil {
			return err
		}
		return fn(s[0], s[1], runtime.Selection{Start: n[0], Finish: n[1], Line: n[2], Index: n[3]})
	}
}
