package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/oops"
)

//go:embed src
var embeddedTemplateFs embed.FS
var embeddedTemplates map[string]*template.Template

func init() {
	type errEntry struct {
		name string
		err  error
	}

	var errs map[string]error
	embeddedTemplates, errs = getTemplatesFromFS(embeddedTemplateFs)
	if len(errs) > 0 {
		var errsList []errEntry
		for filename, err := range errs {
			errsList = append(errsList, errEntry{filename, err})
		}
		sort.Slice(errsList, func(i, j int) bool {
			return strings.Compare(errsList[i].name, errsList[j].name) < 0
		})
		for _, err := range errsList {
			logging.Error().Str("filename", err.name).Err(err.err).Msg("Failed to parse template")
		}
		panic("Failed to parse templates; see above")
	}
}

func getTemplatesFromFS(templateFS fs.ReadDirFS) (map[string]*template.Template, map[string]error) {
	templates := make(map[string]*template.Template)
	errs := make(map[string]error)

	files, err := templateFS.ReadDir("src")
	if err != nil {
		errs["src"] = err
		return templates, errs
	}
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".tmpl") {
			continue
		}
		name := strings.TrimSuffix(f.Name(), ".tmpl")
		t := template.New(f.Name())
		t = t.Funcs(sprig.TxtFuncMap())
		t = t.Funcs(TakeawayTemplateFuncs)
		t = t.Option("missingkey=error")
		t, err := t.ParseFS(templateFS, "src/"+f.Name())
		if err != nil {
			errs[name] = err
			continue
		}
		templates[name] = t
	}

	return templates, errs
}

// Names are file names without the .tmpl suffix, e.g. "prompt.txt".
func GetTemplate(name string) (*template.Template, error) {
	t, ok := embeddedTemplates[name]
	if !ok {
		return nil, oops.New(nil, "Template not found: %s", name)
	}
	return t, nil
}

func Render(name string, data any) (string, error) {
	t, err := GetTemplate(name)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", oops.New(err, "failed to render template %s", name)
	}
	return b.String(), nil
}

var TakeawayTemplateFuncs = template.FuncMap{
	"absoluteshortdate": func(t time.Time) string {
		return t.UTC().Format("January 2, 2006")
	},
	"clarity": func(score int) string {
		return fmt.Sprintf("%d/10", score)
	},
}
