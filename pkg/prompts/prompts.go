package prompts

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

//go:embed templates/*
var defaultTemplates embed.FS

const (
	WebsiteScrapeSystem        = "website_scrape_system"
	WebsiteScrapeUser          = "website_scrape_user"
	InternetSearchScrapeSystem = "internet_search_scrape_system"
	InternetSearchScrapeUser   = "internet_search_scrape_user"
	ParseSearchResult          = "parse_search_result"
)

const (
	placeholderFileExtension = ".txt"
	goTemplateFileExtension  = ".tmpl"
)

type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return "prompt template '" + e.Name + "' not found"
}

type MissingPlaceholderError struct {
	Template string
	Key      string
}

func (e *MissingPlaceholderError) Error() string {
	return "missing required placeholder '" + e.Key + "' in prompt template '" + e.Template + "'"
}

// Loader renders prompt templates by name. Templates are looked up in each
// file system in turn, the first match wins.
//
// Files ending in .txt use {name} placeholders, with {{ and }} standing for
// literal braces. Files ending in .tmpl are Go templates. Both get the sprig
// function map.
type Loader struct {
	fss []fs.FS
}

func NewLoader(fss ...fs.FS) *Loader {
	return &Loader{fss: fss}
}

func NewDefaultLoader() *Loader {
	sub, err := fs.Sub(defaultTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return NewLoader(sub)
}

// NewOverlayLoader looks in dir first and falls back to the embedded
// defaults. An empty dir returns the default loader.
func NewOverlayLoader(dir string) *Loader {
	l := NewDefaultLoader()
	if dir == "" {
		return l
	}
	return NewLoader(append([]fs.FS{os.DirFS(dir)}, l.fss...)...)
}

func (l *Loader) find(name string) (string, string, error) {
	for _, fsys := range l.fss {
		for _, ext := range []string{goTemplateFileExtension, placeholderFileExtension} {
			b, err := fs.ReadFile(fsys, name+ext)
			if err == nil {
				return string(b), ext, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", "", errors.Wrapf(err, "could not read prompt template %s", name)
			}
		}
	}
	return "", "", &TemplateNotFoundError{Name: name}
}

// Load renders the template called name with vars. Without vars the raw
// template text is returned.
func (l *Loader) Load(name string, vars map[string]interface{}) (string, error) {
	text, ext, err := l.find(name)
	if err != nil {
		return "", err
	}
	if len(vars) == 0 {
		return text, nil
	}

	if ext == placeholderFileExtension {
		keys, converted, err := ConvertPlaceholders(text)
		if err != nil {
			return "", errors.Wrapf(err, "could not parse prompt template %s", name)
		}
		for _, k := range keys {
			if _, ok := vars[k]; !ok {
				return "", &MissingPlaceholderError{Template: name, Key: k}
			}
		}
		text = converted
	}

	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse prompt template %s", name)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", errors.Wrapf(err, "could not render prompt template %s", name)
	}
	return sb.String(), nil
}

// Names lists the available templates across all file systems.
func (l *Loader) Names() []string {
	seen := map[string]bool{}
	for _, fsys := range l.fss {
		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			continue
		}
		for _, e := range entries {
			ext := path.Ext(e.Name())
			if e.IsDir() || (ext != placeholderFileExtension && ext != goTemplateFileExtension) {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ext)] = true
		}
	}
	ret := make([]string, 0, len(seen))
	for k := range seen {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// ConvertPlaceholders rewrites {name} placeholders into Go template actions
// and returns the placeholder names in order of first appearance.
func ConvertPlaceholders(text string) ([]string, string, error) {
	var keys []string
	seen := map[string]bool{}
	var sb strings.Builder

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			sb.WriteString(`{{"{"}}`)
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			sb.WriteString("}")
			i++
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, "", errors.Errorf("single '{' encountered at offset %d", i)
			}
			key := text[i+1 : i+1+end]
			if !isIdentifier(key) {
				return nil, "", errors.Errorf("invalid placeholder {%s} at offset %d", key, i)
			}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
			sb.WriteString("{{." + key + "}}")
			i += end + 1
		case c == '}':
			return nil, "", errors.Errorf("single '}' encountered at offset %d", i)
		default:
			sb.WriteByte(c)
		}
	}

	return keys, sb.String(), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
