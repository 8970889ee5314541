package templates

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is where the templates are served when BASE_URL is unset.
const DefaultBaseURL = "http://localhost:8080"

// Overrides maps a template directory name to its entry point. A value is
// either a path relative to <base>/<name>/ or an absolute URL.
type Overrides map[string]string

var builtinOverrides = Overrides{
	"40-metronic-shop-ui":  "theme/shop-index.html",
	"41-metronic-one-page": "theme/index.html",
	"42-navigator-onepage": "index.html",
	"43-metronic-one-page": "theme/",
}

// DefaultOverrides returns a copy of the built-in override table.
func DefaultOverrides() Overrides {
	return Overrides{}.Merge(builtinOverrides)
}

// Merge returns a new table holding o with other layered on top.
func (o Overrides) Merge(other Overrides) Overrides {
	merged := make(Overrides, len(o)+len(other))
	for name, target := range o {
		merged[name] = target
	}
	for name, target := range other {
		merged[name] = target
	}
	return merged
}

// LoadOverrides reads a YAML mapping of template name to entry point.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}

	for name, target := range overrides {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("overrides %s: empty template name", path)
		}
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("overrides %s: template %q has an empty entry point", path, name)
		}
	}

	return overrides, nil
}

// Resolver turns template directory names into navigation URLs.
type Resolver struct {
	BaseURL   string
	Overrides Overrides
}

// NewResolver returns a Resolver using the built-in override table.
func NewResolver(baseURL string) Resolver {
	return Resolver{BaseURL: baseURL, Overrides: DefaultOverrides()}
}

// Resolve returns the URL to capture for the template directory name.
func (r Resolver) Resolve(name string) string {
	dirURL := strings.TrimRight(r.BaseURL, "/") + "/" + name + "/"

	target, ok := r.Overrides[name]
	if !ok {
		return dirURL
	}
	if strings.Contains(target, "://") {
		return target
	}
	return dirURL + strings.TrimLeft(target, "/")
}
