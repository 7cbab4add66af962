package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReplacesPlaceholders(t *testing.T) {
	l := NewLoader(fstest.MapFS{
		"greet.txt": {Data: []byte("Hello {name}, welcome to {place}. Bye {name}.")},
	})

	s, err := l.Load("greet", map[string]interface{}{"name": "Ada", "place": "Acme", "unused": 1})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to Acme. Bye Ada.", s)
}

func TestLoadWithoutVarsReturnsRawText(t *testing.T) {
	l := NewLoader(fstest.MapFS{
		"raw.txt": {Data: []byte("Use {name} and {{braces}}")},
	})

	s, err := l.Load("raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "Use {name} and {{braces}}", s)
}

func TestLoadMissingPlaceholder(t *testing.T) {
	l := NewLoader(fstest.MapFS{
		"greet.txt": {Data: []byte("Hello {name} from {place}")},
	})

	_, err := l.Load("greet", map[string]interface{}{"name": "Ada"})
	var mpe *MissingPlaceholderError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, "place", mpe.Key)
	assert.Equal(t, "greet", mpe.Template)
}

func TestLoadMissingTemplate(t *testing.T) {
	l := NewLoader(fstest.MapFS{})
	_, err := l.Load("nope", nil)
	var nf *TemplateNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)
}

func TestGoTemplatesGetSprig(t *testing.T) {
	l := NewLoader(fstest.MapFS{
		"list.tmpl": {Data: []byte(`{{ .items | join ", " | upper }}`)},
	})
	s, err := l.Load("list", map[string]interface{}{"items": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "A, B", s)
}

func TestConvertPlaceholders(t *testing.T) {
	keys, out, err := ConvertPlaceholders(`{a} {{literal}} {b}}} {a}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, `{{.a}} {{"{"}}literal} {{.b}}} {{.a}}`, out)

	_, _, err = ConvertPlaceholders("unbalanced { brace")
	assert.Error(t, err)
	_, _, err = ConvertPlaceholders("stray } brace")
	assert.Error(t, err)
	_, _, err = ConvertPlaceholders("{not valid}")
	assert.Error(t, err)
}

func TestDefaultTemplates(t *testing.T) {
	l := NewDefaultLoader()
	assert.Equal(t, []string{
		InternetSearchScrapeSystem,
		InternetSearchScrapeUser,
		ParseSearchResult,
		WebsiteScrapeSystem,
		WebsiteScrapeUser,
	}, l.Names())

	s, err := l.Load(WebsiteScrapeUser, map[string]interface{}{
		"entity_name":         "Discord",
		"website":             "https://discord.com/",
		"links_scraped":       "[]",
		"data_keys_to_search": `["num_employees"]`,
	})
	require.NoError(t, err)
	assert.Contains(t, s, "Entity to research: Discord")
	assert.Contains(t, s, "Start by scraping https://discord.com/.")

	_, err = l.Load(InternetSearchScrapeUser, map[string]interface{}{"entity_name": "Discord"})
	var mpe *MissingPlaceholderError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, "links_scraped", mpe.Key)

	s, err = l.Load(ParseSearchResult, map[string]interface{}{
		"entity_name":    "Discord",
		"search_results": "result",
		"data_points":    "num_employees",
	})
	require.NoError(t, err)
	assert.Contains(t, s, `"infoFound": [{"data_point": "name", "value": "value", "reference": "url"}]`)
	assert.NotContains(t, s, "{{")

	for _, name := range []string{WebsiteScrapeSystem, InternetSearchScrapeSystem} {
		s, err := l.Load(name, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, s)
	}
}

func TestOverlayLoaderPrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WebsiteScrapeSystem+".txt"), []byte("custom system"), 0644))

	l := NewOverlayLoader(dir)
	s, err := l.Load(WebsiteScrapeSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom system", s)

	s, err = l.Load(InternetSearchScrapeSystem, nil)
	require.NoError(t, err)
	assert.NotEqual(t, "custom system", s)
}
