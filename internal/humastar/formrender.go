// formrender.go builds Datastar-bound attribute forms at runtime from the
// configured form fields:
//
//	text     → <input type="text">
//	textarea → <textarea>
//	datetime → <input type="datetime-local">
//	category → <select> with the category options
//
// Each form is registered as a named template in the Renderer.
package humastar

import (
	"fmt"
	"html"
	"strings"

	"github.com/joeblew999/plat-critters/internal/templates"
)

// FormField is one form input bound to a signal named prefix + Name.
type FormField struct {
	Name    string
	Label   string
	Input   string
	Options []string
}

// RegisterForm renders fields into a form fragment and defines it in r
// under name.
func RegisterForm(r *templates.Renderer, name, prefix string, fields []FormField) error {
	return r.Define(name, FormHTML(prefix, fields))
}

// FormHTML builds the form groups for fields.
func FormHTML(prefix string, fields []FormField) string {
	var b strings.Builder
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		signal := prefix + f.Name
		switch f.Input {
		case "textarea":
			renderTextarea(&b, label, signal)
		case "datetime":
			renderDateTime(&b, label, signal)
		case "category":
			renderOptions(&b, label, signal, f.Options)
		default:
			renderTextInput(&b, label, signal)
		}
	}
	return b.String()
}

func openGroup(b *strings.Builder, label string) {
	b.WriteString(`<div class="form-group">`)
	fmt.Fprintf(b, "\n    <label>%s</label>\n", html.EscapeString(label))
}

func renderTextInput(b *strings.Builder, label, signal string) {
	openGroup(b, label)
	fmt.Fprintf(b, "    <input type=\"text\" data-bind:%s>\n</div>\n", signal)
}

func renderTextarea(b *strings.Builder, label, signal string) {
	openGroup(b, label)
	fmt.Fprintf(b, "    <textarea rows=\"3\" data-bind:%s></textarea>\n</div>\n", signal)
}

func renderDateTime(b *strings.Builder, label, signal string) {
	openGroup(b, label)
	fmt.Fprintf(b, "    <input type=\"datetime-local\" data-bind:%s>\n</div>\n", signal)
}

func renderOptions(b *strings.Builder, label, signal string, options []string) {
	openGroup(b, label)
	fmt.Fprintf(b, "    <select data-bind:%s>\n", signal)
	for _, v := range options {
		v = html.EscapeString(v)
		fmt.Fprintf(b, "        <option value=\"%s\">%s</option>\n", v, v)
	}
	b.WriteString("    </select>\n</div>\n")
}
