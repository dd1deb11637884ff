package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><head><script>var x = 1;</script></head><body>
<div id="nav">Home</div>
<div class="product-desc">
  <h1>Arduino Uno R3</h1>
  <p>Board based on <b>ATmega328P</b>.</p>
  <img src="https://shop.example/img/uno.jpg" alt="uno">
  <img alt="no source">
  <style>.x{color:red}</style>
  <ul><li>14 digital pins</li><li>  </li><li>6 analog inputs</li></ul>
</div>
</body></html>`

const articlePage = `<html><head><title>Uno review</title></head><body>
<nav><a href="/">Home</a> <a href="/shop">Shop</a></nav>
<article>
  <h1>Arduino Uno R3 review</h1>
  <p>The Arduino Uno R3 is built around the ATmega328P microcontroller and remains the most common starting point for people who want to learn embedded programming, wire up a few sensors, and ship a small prototype without fighting a toolchain.</p>
  <p>It offers fourteen digital input and output pins, six of which can be used as PWM outputs, along with six analog inputs, a sixteen megahertz ceramic resonator, a USB connection, a power jack, an ICSP header and a reset button on a compact board.</p>
  <p>Most shields fit without adapters, the documentation is extensive, and the huge number of community libraries means that nearly every common sensor, display or motor driver already has working example code that you can adapt in minutes.</p>
</article>
<footer>Copyright shop.example</footer>
</body></html>`

type fakeFetcher struct {
	html     string
	err      error
	calls    int
	selector string
}

func (f *fakeFetcher) FetchHTML(_ context.Context, _ string, selector string) (string, error) {
	f.calls++
	f.selector = selector
	return f.html, f.err
}

func TestExtractText(t *testing.T) {
	text, found, err := ExtractText(productPage, ".product-desc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Arduino Uno R3\nBoard based on\nATmega328P\n.\nhttps://shop.example/img/uno.jpg\n14 digital pins\n6 analog inputs", text)

	_, found, err = ExtractText(productPage, ".missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	sites := Sites{
		{Domain: "shop.example", ProductSelector: ".product-desc"},
		{Domain: "noselector.example"},
	}

	t.Run("extracts configured site", func(t *testing.T) {
		f := &fakeFetcher{html: productPage}
		text, found, err := New(f, sites).Extract(ctx, "https://www.shop.example/p/uno")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Contains(t, text, "Arduino Uno R3")
		assert.Equal(t, ".product-desc", f.selector)
	})

	t.Run("unknown domain", func(t *testing.T) {
		f := &fakeFetcher{html: productPage}
		_, found, err := New(f, sites).Extract(ctx, "https://other.example/p")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, f.calls)
	})

	t.Run("no selector", func(t *testing.T) {
		f := &fakeFetcher{html: productPage}
		_, found, err := New(f, sites).Extract(ctx, "https://noselector.example/p")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, f.calls)
	})

	t.Run("element missing", func(t *testing.T) {
		f := &fakeFetcher{html: "<html><body><p>sold out</p></body></html>"}
		_, found, err := New(f, sites).Extract(ctx, "https://shop.example/p")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("readability site", func(t *testing.T) {
		f := &fakeFetcher{html: articlePage}
		rsites := Sites{{Domain: "blog.example", Readability: true}}
		text, found, err := New(f, rsites).Extract(ctx, "https://blog.example/uno-review")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Contains(t, text, "ATmega328P microcontroller")
		assert.Equal(t, "body", f.selector)
	})

	t.Run("fetch error", func(t *testing.T) {
		fetchErr := errors.New("timeout")
		f := &fakeFetcher{err: fetchErr}
		_, _, err := New(f, sites).Extract(ctx, "https://shop.example/p")
		assert.ErrorIs(t, err, fetchErr)
	})
}

func TestLoadSites(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crawl-config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"websites":[{"domain":"a.example","product_selector":"#desc"},{"domain":"b.example"}]}`), 0o644))

		sites, err := LoadSites(path)
		require.NoError(t, err)
		require.Len(t, sites, 2)

		site, ok := sites.SiteFor("www.a.example")
		assert.True(t, ok)
		assert.Equal(t, "#desc", site.ProductSelector)

		_, ok = sites.SiteFor("c.example")
		assert.False(t, ok)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crawl-config.yaml")
		data := "websites:\n  - domain: a.example\n    product_selector: \"#desc\"\n  - domain: blog.example\n    readability: true\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		sites, err := LoadSites(path)
		require.NoError(t, err)
		assert.Equal(t, Sites{
			{Domain: "a.example", ProductSelector: "#desc"},
			{Domain: "blog.example", Readability: true},
		}, sites)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParseSitesYAML([]byte("websites: [\n"))
		assert.ErrorIs(t, err, ErrInvalidSiteConfig)

		_, err = ParseSitesYAML([]byte("sites: []\n"))
		assert.ErrorIs(t, err, ErrInvalidSiteConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSites(filepath.Join(t.TempDir(), "none.json"))
		assert.Error(t, err)
	})

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{websites`},
		{"no websites key", `{"sites": []}`},
		{"websites not a list", `{"websites": {"domain": "a"}}`},
		{"empty domain", `{"websites": [{"domain": "", "product_selector": "#x"}]}`},
		{"bad selector", `{"websites": [{"domain": "a", "product_selector": "div[["}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSites([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidSiteConfig)
		})
	}
}
