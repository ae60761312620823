//go:build property

package router

import (
	"net/url"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/reactive/internal/config"
)

func TestRouterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	r, err := New([]config.RouteConfig{
		{Name: "item", Pattern: `^/items/(?P<id>[A-Za-z0-9]+)$`},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("named groups round-trip into params", prop.ForAll(
		func(id, q, hash string) bool {
			raw := "/items/" + id + "?q=" + url.QueryEscape(q) + "#" + hash
			m, err := r.Match(raw)
			if err != nil {
				return false
			}
			return m.Name == "item" && m.Params["id"] == id && m.Query["q"] == q && m.Hash == hash
		},
		gen.Identifier(),
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.Property("navigate state mirrors the match", prop.ForAll(
		func(id string) bool {
			m, err := r.Navigate("/items/" + id)
			if err != nil {
				return false
			}
			snap := r.State().Snapshot().(map[string]any)
			params := snap["params"].(map[string]any)
			return snap["name"] == m.Name && params["id"] == id && len(params) == 1
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
