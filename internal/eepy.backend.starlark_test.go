package internal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// testEngine compiles named sources and renders them, serving include and extends.
type testEngine struct {
	t       *testing.T
	sources map[string]string
	backend Backend
	exec    *Executor
}

func newTestEngine(t *testing.T, sources map[string]string) *testEngine {
	t.Helper()
	return &testEngine{
		t:       t,
		sources: sources,
		backend: NewStarlarkBackend(BackendConfig{Logger: zap.NewNop()}),
		exec:    NewExecutor(zap.NewNop()),
	}
}

func (e *testEngine) compile(name string) (*Program, Unit, error) {
	prog, err := Compile(name, e.sources[name], nil)
	if err != nil {
		return nil, nil, err
	}
	unit, err := e.backend.Compile(prog)
	if err != nil {
		return nil, nil, err
	}
	return prog, unit, nil
}

func (e *testEngine) RenderNested(_ context.Context, path string, vars map[string]any, parent *RenderContext) (string, error) {
	prog, unit, err := e.compile(path)
	if err != nil {
		return "", err
	}
	child, err := parent.Child(path, vars)
	if err != nil {
		return "", err
	}
	return e.exec.Execute(prog, e.sources[path], unit, child)
}

func (e *testEngine) renderContext(name string, vars map[string]any, filter Filter) (*RenderContext, string, error) {
	prog, unit, err := e.compile(name)
	if err != nil {
		return nil, "", err
	}
	rc := NewRenderContext(context.Background(), RenderConfig{
		Template: name,
		Vars:     vars,
		Filter:   filter,
		Loader:   e,
	})
	out, err := e.exec.Execute(prog, e.sources[name], unit, rc)
	return rc, out, err
}

func (e *testEngine) render(name string, vars map[string]any) (string, error) {
	_, out, err := e.renderContext(name, vars, nil)
	return out, err
}

func renderSource(t *testing.T, source string, vars map[string]any) string {
	t.Helper()
	out, err := newTestEngine(t, map[string]string{"main": source}).render("main", vars)
	require.NoError(t, err)
	return out
}

func TestStarlark_Render(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		vars     map[string]any
		expected string
	}{
		{
			name:     "loop with trim markers",
			source:   "<%- for i in range(1,4): -%><%= i %>,<%- end -%>",
			expected: "1,2,3,",
		},
		{
			name:     "multi-line fragment",
			source:   "<%-\n    if cond:\n        concat(\"A\")\n    else:\n        concat(\"B\")\n-%>",
			vars:     map[string]any{"cond": false},
			expected: "B",
		},
		{
			name:     "if elif else",
			source:   `<% if n == 1: %>one<% elif n == 2: %>two<% else: %>many<% end %>`,
			vars:     map[string]any{"n": 2},
			expected: "two",
		},
		{
			name:     "inline blocks",
			source:   `<% if flag: concat("yes") %><% else: concat("no") %>!`,
			vars:     map[string]any{"flag": true},
			expected: "yes!",
		},
		{
			name:     "escaped markers",
			source:   "a <%% b %%> c",
			expected: "a <% b %> c",
		},
		{
			name:     "trim around loop lines",
			source:   "<ul>\n  <%- for x in xs: -%>\n  <li><%= x %></li>\n  <%- end -%>\n</ul>",
			vars:     map[string]any{"xs": []string{"a", "b"}},
			expected: "<ul>\n  <li>a</li>\n  <li>b</li>\n</ul>",
		},
		{
			name:     "empty block gets pass",
			source:   "<% if x: %><% end %>done",
			vars:     map[string]any{"x": true},
			expected: "done",
		},
		{
			name:     "unclosed block closes at end",
			source:   "<% if True: %>yes",
			expected: "yes",
		},
		{
			name:     "def macro",
			source:   "<% def item(x): %><i><%= x %></i><% end %><% item(1) %><% item(2) %>",
			expected: "<i>1</i><i>2</i>",
		},
		{
			name:     "while loop",
			source:   "<% n = 0 %><% while n < 3: %><%= n %><% n += 1 %><% end %>",
			expected: "012",
		},
		{
			name:     "none renders empty",
			source:   "[<%= None %>]",
			expected: "[]",
		},
		{
			name:     "dict and struct values",
			source:   `<%= user["name"] %>/<%= post.title %>`,
			vars: map[string]any{
				"user": map[string]any{"name": "yuka"},
				"post": struct {
					Title string `json:"title"`
				}{Title: "hi"},
			},
			expected: "yuka/hi",
		},
		{
			name:     "expression with comment",
			source:   "<%= 1 + 1  # two %>",
			expected: "2",
		},
		{
			name:     "line continuation",
			source:   "<% total = 1 + \\\n  2 %><%= total %>",
			expected: "3",
		},
		{
			name:     "library modules",
			source:   `<%= json.encode({"a": 1}) %> <%= math.floor(2.5) %>`,
			expected: `{"a":1} 2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderSource(t, tt.source, tt.vars))
		})
	}
}

func TestStarlark_Filter(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"main": "<%= s %>|<%=r s %>"})
	_, out, err := engine.renderContext("main", map[string]any{"s": "<b>"}, EscapeXML)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;|<b>", out)
}

func TestStarlark_FilterHelper(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"main": `<%=r filter(s) %>|<% concat(filter(3)) %>|<% include("part") %>`,
		"part": `<%=r filter("<i>") %>`,
	})
	_, out, err := engine.renderContext("main", map[string]any{"s": "<b>"}, EscapeXML)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;|3|&lt;i&gt;", out)

	_, out, err = engine.renderContext("main", map[string]any{"s": "<b>"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<b>|3|<i>", out)
}

func TestStarlark_TemplateName(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"main": `<%= template_name() %>:<% include("part") %>`,
		"part": `<%= template_name() %>`,
	})
	out, err := engine.render("main", map[string]any{"template_name": "shadow", "filter": "shadow"})
	require.NoError(t, err)
	assert.Equal(t, "main:part", out)
}

func TestStarlark_Cycle(t *testing.T) {
	out := renderSource(t, `<% c = cycle("X", "Y") %><%= c() %><%= c() %><%= c() %><%= c() %>`, nil)
	assert.Equal(t, "XYXY", out)
}

func TestStarlark_EscapeAndToStr(t *testing.T) {
	out := renderSource(t, `<%= escape("<&>") %><%= tostr(None) %><%= tostr(3) %>`, nil)
	assert.Equal(t, "&lt;&amp;&gt;3", out)
}

func TestStarlark_CaptureByName(t *testing.T) {
	source := `<% with capture("greeting"): %>Hello <%= name %><% end %>[<%= greeting %>]`
	engine := newTestEngine(t, map[string]string{"main": source})
	rc, out, err := engine.renderContext("main", map[string]any{"name": "Bob"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[Hello Bob]", out)

	v, ok := rc.Lookup("greeting")
	assert.True(t, ok)
	assert.Equal(t, "Hello Bob", v)
}

func TestStarlark_CaptureMultiLine(t *testing.T) {
	source := "<%\nwith capture(\"x\"):\n    concat(\"a\")\n    concat(\"b\")\nconcat(x.upper())\n%>"
	assert.Equal(t, "AB", renderSource(t, source, nil))
}

func TestStarlark_CaptureContainerAndCallback(t *testing.T) {
	source := `<% d = {} %><% with capture((d, "k")): %>v<% end %><%= d["k"] %>` +
		`<% def cb(text, ctx): %><% ctx.bind("upper", text.upper()) %><% end %>` +
		`<% with capture(cb): %>hi<% end %><% captured_as("upper") %>`
	assert.Equal(t, "vHI", renderSource(t, source, nil))
}

func TestStarlark_InlineWith(t *testing.T) {
	source := `<% with capture("x"): concat("q") %><%= x %>`
	assert.Equal(t, "q", renderSource(t, source, nil))
}

func TestStarlark_WithAs(t *testing.T) {
	source := `<% with block("b") as scope: %>x<% end %><%= type(scope) %>`
	assert.Equal(t, "x"+TypeNameScope, renderSource(t, source, nil))
}

func TestStarlark_CapturedAs(t *testing.T) {
	source := `<% if not captured_as("title"): %>Default<% end %>`
	assert.Equal(t, "Default", renderSource(t, source, nil))
	assert.Equal(t, "T", renderSource(t, source, map[string]any{"title": "T"}))
}

func TestStarlark_BlockOverride(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"parent": `<html><% with block("body"): %>default<% end %>|<% with block("body"): %>again<% end %></html>`,
		"child":  `<% extends("parent") %><% with block("body"): %>A<% end %>`,
	})
	out, err := engine.render("child", nil)
	require.NoError(t, err)
	assert.Equal(t, "<html>A|A</html>", out)

	out, err = engine.render("parent", nil)
	require.NoError(t, err)
	assert.Equal(t, "<html>default|default</html>", out)
}

func TestStarlark_ExtendsWithVars(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"layout": `<h1><%= title %></h1><% with block(): %><% end %><%= note %>`,
		"page":   `<% extends("layout", title="T") %><% note = "!" %><% with block(): %>body<% end %>`,
	})
	out, err := engine.render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "<h1>T</h1>body!", out)
}

func TestStarlark_Include(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"row":  `<li><%= item %></li>`,
		"list": `<% for item in items: %><% include("row") %><% end %>`,
		"one":  `<% x = include("row", capture_as="r", item="z") %>[<%= x %>]<% captured_as("r") %>`,
	})

	out, err := engine.render("list", map[string]any{"items": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "<li>a</li><li>b</li>", out)

	out, err = engine.render("one", nil)
	require.NoError(t, err)
	assert.Equal(t, "[<li>z</li>]<li>z</li>", out)
}

func TestStarlark_IncludeCaptureBindsName(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"row":   `<li><%= name %></li>`,
		"inc":   `<% include('row', capture_as='r', name='Q') %>{<%= r %>}`,
		"loop":  `<% for n in names: %><% include("row", name=n, capture_as="last") %><% end %>(<%= last %>)`,
		"multi": "<%\ninclude(\"row\", capture_as=\"m\", name=\"M\")  # keep\nconcat(m.upper())\n%>",
	})

	rc, out, err := engine.renderContext("inc", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "{<li>Q</li>}", out)
	v, ok := rc.Lookup("r")
	assert.True(t, ok)
	assert.Equal(t, "<li>Q</li>", v)

	out, err = engine.render("loop", map[string]any{"names": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "(<li>b</li>)", out)

	out, err = engine.render("multi", nil)
	require.NoError(t, err)
	assert.Equal(t, "<LI>M</LI>", out)
}

func TestCaptureAssignment(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{`include("row", capture_as="r")`, `r = include("row", capture_as="r")`},
		{`include('row', capture_as = 'r', x=f(1, 2))  # note`, `r = include('row', capture_as = 'r', x=f(1, 2))  # note`},
		{`include("row", capture_as=name)`, `include("row", capture_as=name)`},
		{`include("row", capture_as="r')`, `include("row", capture_as="r')`},
		{`include("row", capture_as="not a name")`, `include("row", capture_as="not a name")`},
		{`include("row", label="capture_as='r'")`, `include("row", label="capture_as='r'")`},
		{`include("row", capture_as="r").strip()`, `include("row", capture_as="r").strip()`},
		{`x = include("row", capture_as="r")`, `x = include("row", capture_as="r")`},
		{`included("row", capture_as="r")`, `included("row", capture_as="r")`},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, captureAssignment(Instruction{Kind: InstructionStatement, Text: tt.text}))
		})
	}
}

func TestStarlark_IncludeRecursionBounded(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"loop": `<% include("loop") %>`})
	_, err := engine.render("loop", nil)
	require.Error(t, err)

	var merr *MisuseError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, ErrMsgMaxDepthExceeded, merr.Message)
}

func TestStarlark_GlobalsBoundBack(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"main": `<% n = 1 + 2 %><% names = ["a"] %>`})
	rc, _, err := engine.renderContext("main", nil, nil)
	require.NoError(t, err)

	n, _ := rc.Lookup("n")
	assert.Equal(t, int64(3), n)
	names, _ := rc.Lookup("names")
	assert.Equal(t, []any{"a"}, names)
}

func TestStarlark_RenderErrorLine(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   int
		cause  string
	}{
		{name: "undefined name", source: "a\nb\n<%= missing %>", line: 3, cause: "undefined: missing"},
		{name: "runtime failure", source: "<% x = 1 %>\n<%= x + \"s\" %>", line: 2, cause: "unknown binary op"},
		{name: "failure inside macro", source: "<% def f(): %>\n<%= 1 // 0 %>\n<% end %>\n<% f() %>", line: 2, cause: "division by zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine(t, map[string]string{"main": tt.source}).render("main", nil)
			require.Error(t, err)

			var rerr *RenderError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, "main", rerr.Template)
			assert.Equal(t, tt.line, rerr.Line)
			assert.Contains(t, rerr.Error(), tt.cause)
			lines := strings.Split(rerr.Excerpt, "\n")
			assert.Contains(t, lines[len(lines)-1], strings.Split(tt.source, "\n")[tt.line-1])
		})
	}
}

func TestStarlark_NestedErrorChain(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"bad":  "ok\n<%= nope() %>",
		"main": "x\n\n<% include(\"bad\") %>",
	})
	_, err := engine.render("main", nil)
	require.Error(t, err)

	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "main", rerr.Template)
	assert.Equal(t, 3, rerr.Line)

	var evalErr *starlark.EvalError
	require.True(t, errors.As(rerr.Cause, &evalErr))
	var inner *RenderError
	require.True(t, errors.As(evalErr.Unwrap(), &inner))
	assert.Equal(t, "bad", inner.Template)
	assert.Equal(t, 2, inner.Line)
}

func TestStarlark_ScopeLeftOpen(t *testing.T) {
	source := `<% def f(): %><% with block("a"): %><% return %><% end %><% end %><% f() %>`
	_, err := newTestEngine(t, map[string]string{"main": source}).render("main", nil)
	require.Error(t, err)

	var merr *MisuseError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, ErrMsgScopeUnclosed, merr.Message)
}

func TestStarlark_NotAScope(t *testing.T) {
	_, err := newTestEngine(t, map[string]string{"main": `<% with 1: %>x<% end %>`}).render("main", nil)
	var merr *MisuseError
	require.True(t, errors.As(err, &merr))
	assert.Contains(t, merr.Message, ErrMsgNotAScope)
}

func TestStarlark_Unsupported(t *testing.T) {
	prog, err := Compile("t", "<% try: %>x<% end %>", nil)
	require.NoError(t, err)

	_, err = NewStarlarkBackend(BackendConfig{}).Compile(prog)
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Message, KeywordTry)
	assert.Equal(t, 1, cerr.Line)
}

func TestStarlark_SyntaxError(t *testing.T) {
	prog, err := Compile("t", "ok\n<% x = = 1 %>", nil)
	require.NoError(t, err)

	_, err = NewStarlarkBackend(BackendConfig{}).Compile(prog)
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrMsgBackendSyntax, cerr.Message)
	assert.Equal(t, 2, cerr.Line)
}

func TestStarlark_Source(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{name: "pass for empty block", source: "<% if a: %><% end %>", expected: "\nif a:\n    pass"},
		{name: "with scope", source: `<% with block("b"): %>x<% end %>`, expected: "\n__enter__(0, block(\"b\"))\n__literal__(1)\n__exit__(0)"},
		{name: "capture binds name", source: `<% with capture("c"): %><% end %>`, expected: "\n__enter__(0, capture(\"c\"))\nc = __exit__(0)"},
		{name: "include capture binds name", source: `<% include("row", capture_as="r") %>`, expected: "\nr = include(\"row\", capture_as=\"r\")"},
		{name: "nested depth", source: "<% for x in xs: %><% if x: %><%=r x %><% end %><% end %>", expected: "\nfor x in xs:\n    if x:\n        __emit_raw__(x)"},
		{
			name:     "with inside loop",
			source:   `<% for x in xs: %><% with block("b"): %><%= x %><% end %><% end %>!`,
			expected: "\nfor x in xs:\n    __enter__(0, block(\"b\"))\n    __emit__(x)\n    __exit__(0)\n__literal__(3)",
		},
		{
			name:     "multi-line with",
			source:   "<% if a: %><%\nwith block(\"b\"):\n    if a:\n        concat(1)\nconcat(2)\n%><% end %>",
			expected: "\nif a:\n    __enter__(0, block(\"b\"))\n    if a:\n        concat(1)\n    __exit__(0)\n    concat(2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile("t", tt.source, nil)
			require.NoError(t, err)
			unit, err := NewStarlarkBackend(BackendConfig{}).Compile(prog)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, unit.Source())
		})
	}
}

func TestStarlark_MaxSteps(t *testing.T) {
	prog, err := Compile("t", "<% while True: %><% pass %><% end %>", nil)
	require.NoError(t, err)
	unit, err := NewStarlarkBackend(BackendConfig{MaxSteps: 1000}).Compile(prog)
	require.NoError(t, err)

	rc := NewRenderContext(context.Background(), RenderConfig{Template: "t"})
	_, err = NewExecutor(nil).Execute(prog, "", unit, rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestStarlark_ContextCancel(t *testing.T) {
	prog, err := Compile("t", "<% while True: %><% pass %><% end %>", nil)
	require.NoError(t, err)
	unit, err := NewStarlarkBackend(BackendConfig{}).Compile(prog)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rc := NewRenderContext(ctx, RenderConfig{Template: "t"})
	_, err = NewExecutor(nil).Execute(prog, "", unit, rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestStarlark_HelperOutsideRender(t *testing.T) {
	thread := &starlark.Thread{}
	_, err := starlark.Call(thread, newBuiltins()[HelperConcat], starlark.Tuple{starlark.String("x")}, nil)
	var merr *MisuseError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, ErrMsgNoRenderContext, merr.Message)
}

func TestToStarlark(t *testing.T) {
	v, err := ToStarlark(map[string]any{"b": []int{1, 2}, "a": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a": None, "b": [1, 2]}`, v.String())

	v, err = ToStarlark(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, starlark.String("2024-01-02T03:04:05Z"), v)

	_, err = ToStarlark(map[int]string{1: "x"})
	assert.Error(t, err)

	var nilPtr *struct{}
	v, err = ToStarlark(nilPtr)
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)
}

func TestFromStarlark(t *testing.T) {
	d := starlark.NewDict(1)
	require.NoError(t, d.SetKey(starlark.String("k"), starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.Float(1.5)})))
	assert.Equal(t, map[string]any{"k": []any{int64(1), 1.5}}, FromStarlark(d))
	assert.Nil(t, FromStarlark(starlark.None))
	assert.Equal(t, "s", FromStarlark(starlark.String("s")))
}
