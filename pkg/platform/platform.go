// Package platform describes the runtime an extension host targets.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Any matches every OS or architecture.
const Any = "any"

// Platform represents a target runtime with OS and architecture.
// Either field may be "any".
type Platform struct {
	OS   string `yaml:"os" json:"os,omitempty"`
	Arch string `yaml:"arch" json:"arch,omitempty"`
}

// Current returns the platform the process runs on.
func Current() Platform {
	return Platform{
		OS:   NormalizeOS(runtime.GOOS),
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

// Parse reads "os/arch" or "os-arch". Missing parts become "any".
func Parse(s string) (Platform, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Platform{OS: Any, Arch: Any}, nil
	}
	sep := strings.IndexAny(s, "/-")
	if sep < 0 {
		return Platform{OS: NormalizeOS(s), Arch: Any}, nil
	}
	p := Platform{OS: NormalizeOS(s[:sep]), Arch: NormalizeArch(s[sep+1:])}
	if p.OS == "" || p.Arch == "" {
		return Platform{}, fmt.Errorf("invalid platform %q", s)
	}
	return p, nil
}

// WithDefaults fills empty fields from the current platform.
func (p Platform) WithDefaults() Platform {
	cur := Current()
	if p.OS == "" {
		p.OS = cur.OS
	}
	if p.Arch == "" {
		p.Arch = cur.Arch
	}
	return Platform{OS: NormalizeOS(p.OS), Arch: NormalizeArch(p.Arch)}
}

// Matches reports whether p and target are compatible. "any" and empty
// fields match every value.
func (p Platform) Matches(target Platform) bool {
	return matchPart(NormalizeOS(p.OS), NormalizeOS(target.OS)) &&
		matchPart(NormalizeArch(p.Arch), NormalizeArch(target.Arch))
}

func matchPart(a, b string) bool {
	return a == "" || b == "" || a == Any || b == Any || a == b
}

// String returns the "os/arch" form.
func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}

// NormalizeOS maps OS name variants to GOOS spelling.
func NormalizeOS(os string) string {
	os = strings.ToLower(strings.TrimSpace(os))
	switch os {
	case "macos", "osx":
		return "darwin"
	case "win", "win32", "win64":
		return "windows"
	}
	return os
}

// NormalizeArch maps architecture variants to GOARCH spelling.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch arch {
	case "x86_64", "x64":
		return "amd64"
	case "x86", "i386", "i686":
		return "386"
	case "aarch64":
		return "arm64"
	}
	return arch
}
