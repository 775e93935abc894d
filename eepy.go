// Package eepy compiles markup templates with embedded script fragments and renders
// them with a Starlark script backend.
//
// Fragments are delimited with <% and %>:
//
//	<ul>
//	<%- for item in items: -%>
//	  <li><%= item %></li>
//	<%- end -%>
//	</ul>
//
// # Basic Usage
//
// Render a template from a string:
//
//	tmpl, err := eepy.NewTemplate("Hello <%= name %>!")
//	result, err := tmpl.Render(ctx, map[string]any{"name": "Alice"})
//	// result: "Hello Alice!"
//
// Render files relative to a base directory, with compiled programs cached on disk:
//
//	cache, _ := eepy.OpenCache(eepy.CacheDriverFilesystem, "/var/cache/eepy")
//	r := eepy.MustNew(
//	    eepy.WithBase("templates"),
//	    eepy.WithCache(cache),
//	    eepy.WithFilter(eepy.EscapeXMLFilter),
//	)
//	result, err := r.Render(ctx, "page.html", map[string]any{"title": "Home"})
//
// # Template Syntax
//
// <% code %> runs a statement, <%= expr %> emits a filtered expression and
// <%=r expr %> emits it unfiltered. <%- and -%> trim surrounding whitespace;
// <%% and %%> produce literal markers. Blocks are closed with <% end %> since
// indentation across fragments carries no meaning.
//
// # Helpers
//
// Fragments can call concat, capture, captured_as, block, include, extends,
// cycle, escape, tostr, filter and template_name:
//
//	<% extends("layout.html", title="Home") %>
//	<% with block("body"): %>page body<% end %>
//
// An include with a literal capture_as name binds that name for the fragments that
// follow; names computed at render time are read back with captured_as:
//
//	<% include("row.html", capture_as="row", item=item) %><%= row %>
//
// # Error Handling
//
// Compile and render failures carry the template name, the template line and an
// excerpt of the source ending at that line as cuserr metadata.
package eepy
