// Package bind implements declarative binding directives for HTML
// fragments. Elements opt in through data attributes:
//
//	data-bond="app.user.name"        store "app", path ".user.name"
//	data-translate="cart.items"      message key, params from data-param-*
//	data-localize="number:2"         format of data-value, see Localize
//	data-navigate="/users/42"        link resolved through the router
//
// Scan lists the directives of a fragment and Render fills them in.
package bind

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/reactive/internal/errors"
)

// Kind names a directive.
type Kind string

const (
	KindBond      Kind = "bond"
	KindTranslate Kind = "translate"
	KindLocalize  Kind = "localize"
	KindNavigate  Kind = "navigate"
)

const (
	attrPrefix      = "data-"
	paramPrefix     = "data-param-"
	attrValue       = "data-value"
	attrLang        = "data-lang"
	attrBondTarget  = "data-bond-property"
	defaultProperty = "text"
)

var kinds = []Kind{KindBond, KindTranslate, KindLocalize, KindNavigate}

// Directive is one directive attribute found on an element.
type Directive struct {
	Kind    Kind              `json:"kind"`
	Element string            `json:"element"`
	ID      string            `json:"id,omitempty"`
	Value   string            `json:"value"`
	Params  map[string]string `json:"params,omitempty"`
	// Property is the element property a bond writes to: "text" for the
	// element content or the name of an attribute such as "value".
	Property string `json:"property,omitempty"`
	// Input is the data-value attribute of localize directives.
	Input string `json:"input,omitempty"`
	// Lang overrides the current language for translate and localize.
	Lang string `json:"lang,omitempty"`

	node *html.Node
}

// fragmentContext is the parent a fragment is parsed into.
var fragmentContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

func parseFragment(r io.Reader) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(r, fragmentContext)
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid HTML fragment")
	}
	return nodes, nil
}

// Scan lists the directives of an HTML fragment in document order.
func Scan(r io.Reader) ([]Directive, error) {
	nodes, err := parseFragment(r)
	if err != nil {
		return nil, err
	}
	var out []Directive
	for _, n := range nodes {
		collect(n, &out)
	}
	return out, nil
}

func collect(n *html.Node, out *[]Directive) {
	if n.Type == html.ElementNode {
		*out = append(*out, directivesOf(n)...)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, out)
	}
}

func directivesOf(n *html.Node) []Directive {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}

	var params map[string]string
	for key, val := range attrs {
		if strings.HasPrefix(key, paramPrefix) {
			if params == nil {
				params = make(map[string]string)
			}
			params[strings.TrimPrefix(key, paramPrefix)] = val
		}
	}

	var out []Directive
	for _, kind := range kinds {
		val, ok := attrs[attrPrefix+string(kind)]
		if !ok {
			continue
		}
		d := Directive{
			Kind:    kind,
			Element: n.Data,
			ID:      attrs["id"],
			Value:   val,
			Lang:    attrs[attrLang],
			node:    n,
		}
		switch kind {
		case KindBond:
			d.Property = attrs[attrBondTarget]
			if d.Property == "" {
				d.Property = defaultProperty
			}
		case KindTranslate:
			d.Params = params
		case KindLocalize:
			d.Input = attrs[attrValue]
		}
		out = append(out, d)
	}
	return out
}

// ParseRef splits a bond reference "store.path.to.field" into the store name
// and the observable path ".path.to.field". A bare store name refers to the
// store root.
func ParseRef(ref string) (store, path string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, ".") {
		return "", "", errors.ErrInvalidPath(ref)
	}
	store, rest, found := strings.Cut(ref, ".")
	if !found {
		return store, "", nil
	}
	if rest == "" {
		return "", "", errors.ErrInvalidPath(ref)
	}
	return store, "." + rest, nil
}

func paramsAny(params map[string]string) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
