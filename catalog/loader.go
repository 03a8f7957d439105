package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrMissingFile is returned when a required data file is absent.
var ErrMissingFile = errors.New("catalog: required file missing")

var extensions = []string{".json", ".yaml", ".yml"}

type itemsFile struct {
	Items []ItemTemplate `json:"items"`
}

type areasFile struct {
	Areas []AreaDef `json:"areas"`
}

type recipesFile struct {
	Recipes []RecipeDef `json:"recipes"`
}

// Load reads items, areas and recipes from dataPath. Each file may be JSON or
// YAML. Documents are checked against the embedded schemas before decoding
// and the assembled catalog is then cross-checked by New. Only the items file
// is mandatory.
func Load(dataPath string) (*Catalog, error) {
	var (
		items   itemsFile
		areas   areasFile
		recipes recipesFile
	)
	loaders := []struct {
		name     string
		out      any
		required bool
	}{
		{"items", &items, true},
		{"areas", &areas, false},
		{"recipes", &recipes, false},
	}
	for _, l := range loaders {
		if err := loadDocument(dataPath, l.name, l.required, l.out); err != nil {
			return nil, err
		}
	}
	return New(items.Items, areas.Areas, recipes.Recipes)
}

func locate(dir, name string) (string, error) {
	for _, ext := range extensions {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("catalog: stat %s: %w", p, err)
		}
	}
	return "", fs.ErrNotExist
}

func loadDocument(dir, name string, required bool, out any) error {
	path, err := locate(dir, name)
	if errors.Is(err, fs.ErrNotExist) {
		if required {
			return fmt.Errorf("%w: %s in %s", ErrMissingFile, name, dir)
		}
		return nil
	}
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	data, err := toJSON(path, raw)
	if err != nil {
		return err
	}
	if err := validateSchema(name, data); err != nil {
		return fmt.Errorf("catalog: %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return nil
}

// toJSON converts YAML documents to JSON so both formats share one decode
// and validation path.
func toJSON(path string, raw []byte) ([]byte, error) {
	if filepath.Ext(path) == ".json" {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("catalog: convert %s: %w", path, err)
	}
	return data, nil
}

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	names := []string{"items", "areas", "recipes"}
	for _, n := range names {
		raw, err := schemaFS.ReadFile("schemas/" + n + ".json")
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(n+".json", bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("catalog: schema %s: %w", n, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := c.Compile(n + ".json")
		if err != nil {
			return nil, fmt.Errorf("catalog: compile schema %s: %w", n, err)
		}
		out[n] = s
	}
	return out, nil
})

func validateSchema(name string, data []byte) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("no schema for %s", name)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
