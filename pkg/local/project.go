// Package local builds extension projects that live in source folders next
// to the host and exposes their build output as installable packages.
package local

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
)

const (
	// DefaultVersion is used when a project does not declare one.
	DefaultVersion = "1.0.0"
	// DefaultOutput is the project-relative build output folder.
	DefaultOutput = "bin"
	// ModuleExtension is appended to the assembly name to form the entry point.
	ModuleExtension = ".so"
)

// DefaultPatterns recognize project files when none are configured.
var DefaultPatterns = []string{"extension.yaml", "extension.yml", "*.extproj"}

// Manifest is the YAML document describing one extension project.
type Manifest struct {
	ID           string       `yaml:"id"`
	Version      string       `yaml:"version"`
	AssemblyName string       `yaml:"assembly_name"`
	Output       string       `yaml:"output"`
	Build        BuildSection `yaml:"build"`
	// References are other project folders or files this project builds against.
	References   []string     `yaml:"references"`
	Dependencies []Dependency `yaml:"dependencies"`
}

// BuildSection overrides the build command for one project.
type BuildSection struct {
	Command string `yaml:"command"`
}

// Dependency is an external package a project needs at runtime. Private
// dependencies are build-time only and never copied next to the output.
type Dependency struct {
	ID      string `yaml:"id"`
	Range   string `yaml:"range"`
	Private bool   `yaml:"private"`
}

// Project is a parsed manifest anchored on disk.
type Project struct {
	Manifest
	// File is the absolute path of the project file.
	File string
	// Dir is the folder holding File.
	Dir string
	// Name is derived from the file or folder name.
	Name string
}

// PackageID returns the declared id, or the project name.
func (p *Project) PackageID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// PackageVersion returns the declared version, or DefaultVersion.
func (p *Project) PackageVersion() string {
	if p.Version != "" {
		return p.Version
	}
	return DefaultVersion
}

// Assembly returns the output module name without extension.
func (p *Project) Assembly() string {
	if p.AssemblyName != "" {
		return p.AssemblyName
	}
	return p.PackageID()
}

// OutputDir returns the absolute build output folder.
func (p *Project) OutputDir() string {
	out := p.Output
	if out == "" {
		out = DefaultOutput
	}
	if filepath.IsAbs(out) {
		return filepath.Clean(out)
	}
	return filepath.Join(p.Dir, filepath.FromSlash(out))
}

// EntryPoint returns the entry point file name relative to the output folder.
func (p *Project) EntryPoint() string {
	return p.Assembly() + ModuleExtension
}

// ExternalDependencies returns the runtime dependencies of this project that
// the host does not already supply.
func (p *Project) ExternalDependencies(host model.HostContext) []model.DependencyRequest {
	var deps []model.DependencyRequest
	for _, d := range p.Dependencies {
		if d.Private || host.IsSupplied(d.ID) {
			continue
		}
		deps = append(deps, model.DependencyRequest{ID: d.ID, VersionRange: d.Range})
	}
	return deps
}

// LoadProject parses the project file at path.
func LoadProject(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "%s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read project %s", abs)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(errors.ErrProjectParse, "%s: %v", abs, err)
	}
	for i, d := range m.Dependencies {
		if strings.TrimSpace(d.ID) == "" {
			return nil, errors.Wrapf(errors.ErrProjectParse, "%s: dependency %d has no id", abs, i)
		}
	}

	return &Project{
		Manifest: m,
		File:     abs,
		Dir:      filepath.Dir(abs),
		Name:     projectName(abs),
	}, nil
}

// projectName is the file name without extension, or the folder name for the
// generic extension.yaml manifests.
func projectName(file string) string {
	base := filepath.Base(file)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(name, "extension") {
		return filepath.Base(filepath.Dir(file))
	}
	return name
}

// FindProject returns the first file in folder matching patterns, in pattern
// order and then by name.
func FindProject(folder string, patterns []string) (string, error) {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return "", errors.Wrapf(errors.ErrProjectNotFound, "folder %s does not exist", folder)
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s", folder)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, pattern := range patterns {
		for _, name := range names {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return filepath.Join(folder, name), nil
			}
		}
	}
	return "", errors.Wrapf(errors.ErrProjectNotFound, "no file in %s matches %s", folder, strings.Join(patterns, ", "))
}
