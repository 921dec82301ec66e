package catalog

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed demo/*.yaml
var demoFS embed.FS

// Demos lists the names of the built-in demo seeds.
func Demos() []string {
	entries, _ := demoFS.ReadDir("demo")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Demo parses a built-in seed by name.
func Demo(name string) (*Seed, error) {
	data, err := demoFS.ReadFile(path.Join("demo", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown demo %q", name)
	}
	return Parse(data)
}
