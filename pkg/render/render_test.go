package render

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<script>alert('x')</script>", "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;"},
		{`a & b "quoted"`, "a &amp; b &quot;quoted&quot;"},
		{"", ""},
		{"héllo wörld", "héllo wörld"},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeAttr(t *testing.T) {
	got := EscapeAttr("line1\nline2\ttab\r")
	want := "line1&#10;line2&#9;tab&#13;"
	if got != want {
		t.Errorf("EscapeAttr = %q, want %q", got, want)
	}
	if got := EscapeAttr(`"><img src=x>`); got != "&quot;&gt;&lt;img src=x&gt;" {
		t.Errorf("EscapeAttr = %q", got)
	}
}

func TestParseAndRender(t *testing.T) {
	tmpl, err := Parse("greet", "Hello, {{.Name}}!")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := tmpl.Render("greet", struct{ Name string }{"<b>Ada</b>"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := string(out); got != "Hello, &lt;b&gt;Ada&lt;/b&gt;!" {
		t.Errorf("rendered = %q, want auto-escaped output", got)
	}
}

func TestLoadFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/page.html": &fstest.MapFile{
			Data: []byte(`<h1>{{.Title}}</h1>{{raw .Body}}`),
		},
	}
	tmpl, err := Load(fsys, "templates/*.html")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out, err := tmpl.Render("page.html", struct {
		Title string
		Body  Raw
	}{
		Title: "News & Views",
		Body:  Raw("<p>already safe</p>"),
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "News &amp; Views") {
		t.Errorf("title not escaped: %q", got)
	}
	if !strings.Contains(got, "<p>already safe</p>") {
		t.Errorf("raw body escaped: %q", got)
	}
}

func TestParseSupportsRaw(t *testing.T) {
	tmpl, err := Parse("frag", `<div>{{raw .}}</div>`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := tmpl.Render("frag", Raw("<span>ok</span>"))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := string(out); got != "<div><span>ok</span></div>" {
		t.Errorf("rendered = %q, want the raw fragment untouched", got)
	}
}

func TestRawFragmentComposition(t *testing.T) {
	// Handlers assemble Raw fragments from untrusted pieces by escaping
	// each piece for its position first.
	hint := EscapeAttr("say \"hi\"\nplease")
	link := Raw(`<a title="` + hint + `">` + EscapeHTML("<you> & me") + `</a>`)

	tmpl, err := Parse("page", `{{raw .}}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := tmpl.Render("page", link)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := `<a title="say &quot;hi&quot;&#10;please">&lt;you&gt; &amp; me</a>`
	if got := string(out); got != want {
		t.Errorf("rendered = %q, want %q", got, want)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	tmpl, err := Parse("known", "ok")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := tmpl.Render("missing", nil); err == nil {
		t.Error("rendering an unknown template should fail")
	}
}
