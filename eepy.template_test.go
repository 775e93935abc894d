package eepy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTemplate_Render(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		source   string
		vars     map[string]any
		expected string
	}{
		{
			name:     "variables",
			source:   "Hello <%= name %>!",
			vars:     map[string]any{"name": "Alice"},
			expected: "Hello Alice!",
		},
		{
			name:     "trimmed loop",
			source:   "<%- for i in range(1,4): -%><%= i %>,<%- end -%>",
			expected: "1,2,3,",
		},
		{
			name:     "conditional",
			source:   "<% if admin: %>admin<% else: %>user<% end %>",
			vars:     map[string]any{"admin": false},
			expected: "user",
		},
		{
			name:     "escaped markers",
			source:   "<%% literal %%>",
			expected: "<% literal %>",
		},
		{
			name:     "nested data",
			source:   `<%= user["name"] %> has <%= len(user["roles"]) %> roles`,
			vars:     map[string]any{"user": map[string]any{"name": "Bob", "roles": []string{"a", "b"}}},
			expected: "Bob has 2 roles",
		},
		{
			name:     "cycle",
			source:   `<% c = cycle("odd", "even") %><% for i in range(3): %><%= c() %> <% end %>`,
			expected: "odd even odd ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewTemplate(tt.source)
			require.NoError(t, err)
			result, err := tmpl.Render(ctx, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTemplate_Filter(t *testing.T) {
	ctx := context.Background()
	vars := map[string]any{"html": "<b>"}

	tmpl := MustNewTemplate("<%= html %>|<%=r html %>", WithFilter(EscapeXMLFilter))
	result, err := tmpl.Render(ctx, vars)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;|<b>", result)

	result, err = tmpl.RenderWithFilter(ctx, vars, IdentityFilter)
	require.NoError(t, err)
	assert.Equal(t, "<b>|<b>", result)
}

func TestTemplate_FilterHelper(t *testing.T) {
	tmpl := MustNewTemplate(`<% label = filter(html) + "!" %><%=r label %>`, WithFilter(EscapeXMLFilter))
	result, err := tmpl.Render(context.Background(), map[string]any{"html": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;!", result)

	result, err = tmpl.RenderWithFilter(context.Background(), map[string]any{"html": "<b>"}, IdentityFilter)
	require.NoError(t, err)
	assert.Equal(t, "<b>!", result)
}

func TestTemplate_CommonVars(t *testing.T) {
	tmpl := MustNewTemplate("<%= site %>/<%= page %>",
		WithVars(map[string]any{"site": "example.org", "page": "default"}))

	result, err := tmpl.Render(context.Background(), map[string]any{"page": "about"})
	require.NoError(t, err)
	assert.Equal(t, "example.org/about", result)
}

func TestTemplate_CompileArtifacts(t *testing.T) {
	tmpl := MustNewTemplate("<% if a: %>x<% end %>", WithLogger(zap.NewNop()))
	assert.Equal(t, DefaultTemplateName, tmpl.Name())
	assert.Equal(t, "<% if a: %>x<% end %>", tmpl.Source())

	prog, err := tmpl.Program()
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 2)
	assert.Equal(t, "if a:", prog.Instructions[0].Text)

	generated, err := tmpl.GeneratedSource()
	require.NoError(t, err)
	assert.Contains(t, generated, "if a:\n    __literal__(1)")
}

func TestTemplate_ParseError(t *testing.T) {
	_, err := NewTemplate("line one\n<% end %>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgParseFailed)

	var customErr *cuserr.CustomError
	require.True(t, errors.As(err, &customErr))

	line, ok := customErr.GetMetadata(MetaKeyLine)
	assert.True(t, ok)
	assert.Equal(t, "2", line)

	excerpt, ok := customErr.GetMetadata(MetaKeyExcerpt)
	assert.True(t, ok)
	assert.Equal(t, "   1 | line one\n   2 | <% end %>", excerpt)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.Line)
}

func TestTemplate_BackendSyntaxErrorHasExcerpt(t *testing.T) {
	_, err := NewTemplate("ok\n<% x = = 1 %>")
	require.Error(t, err)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.Line)
	assert.Equal(t, "   1 | ok\n   2 | <% x = = 1 %>", cerr.Excerpt)
}

func TestTemplate_ExcerptLines(t *testing.T) {
	source := "1\n2\n3\n4\n5\n6\n<%= 1 // zero %>"
	vars := map[string]any{"zero": 0}

	_, err := MustNewTemplate(source).Render(context.Background(), vars)
	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 7, rerr.Line)
	assert.True(t, strings.HasPrefix(rerr.Excerpt, "   1 | 1\n"), rerr.Excerpt)
	assert.True(t, strings.HasSuffix(rerr.Excerpt, "   7 | <%= 1 // zero %>"), rerr.Excerpt)

	_, err = MustNewTemplate(source, WithExcerptLines(2)).Render(context.Background(), vars)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "   6 | 6\n   7 | <%= 1 // zero %>", rerr.Excerpt)

	_, err = NewTemplate("a\nb\nc\n<% end %>", WithExcerptLines(1))
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "   4 | <% end %>", cerr.Excerpt)
}

func TestTemplate_RenderError(t *testing.T) {
	tmpl := MustNewTemplate("a\nb\n<%= 1 // zero %>")
	_, err := tmpl.Render(context.Background(), map[string]any{"zero": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgRenderFailed)

	var customErr *cuserr.CustomError
	require.True(t, errors.As(err, &customErr))
	line, ok := customErr.GetMetadata(MetaKeyLine)
	assert.True(t, ok)
	assert.Equal(t, "3", line)

	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 3, rerr.Line)
	assert.Contains(t, rerr.Error(), "division by zero")
}

func TestTemplate_HelperMisuse(t *testing.T) {
	tmpl := MustNewTemplate(`<% cycle() %>`)
	_, err := tmpl.Render(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgHelperMisuse)

	var merr *MisuseError
	require.True(t, errors.As(err, &merr))
}

func TestTemplate_MaxSteps(t *testing.T) {
	tmpl := MustNewTemplate("<% for i in range(1000000): %><% end %>", WithMaxSteps(1000))
	_, err := tmpl.Render(context.Background(), nil)
	require.Error(t, err)

	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "too many steps")
}

func TestTemplate_ConcurrentRender(t *testing.T) {
	r := MustNew()
	tmpl := newTemplate("shared", "<% for x in xs: %><%= x %><% end %>", nil, r)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := tmpl.Render(context.Background(), map[string]any{"xs": []int{i, i}})
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d%d", i, i); result != want {
				errs <- fmt.Errorf("got %q, want %q", result, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestTemplate_InvalidOptions(t *testing.T) {
	_, err := NewTemplate("x", WithBackend("lua"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgUnknownBackend)

	_, err = NewTemplate("x", WithEncoding("no-such-charset"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgUnknownEncoding)
}
