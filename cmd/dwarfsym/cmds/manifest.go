package cmds

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/coredump-run/dwarfsym/sections"
)

// SectionManifest describes, for each named section, where its raw bytes
// live on disk and the virtual address it is mapped at, feeding the core
// pre-extracted section bytes without a container parser. Grounded on the
// teacher's pkg/config.Config: a flat YAML document (gopkg.in/yaml.v2)
// loaded once at startup.
type SectionManifest struct {
	Sections map[string]ManifestEntry `yaml:"sections"`
}

// ManifestEntry is one section's manifest record.
type ManifestEntry struct {
	// Path is the file containing the section's raw bytes.
	Path string `yaml:"path"`
	// VirtualAddress is the runtime address byte 0 of the section is
	// mapped at, omitted for sections with no address (e.g. when doing
	// purely static symbolication with no pcrel resolution needed).
	VirtualAddress *uint64 `yaml:"virtual_address,omitempty"`
}

// LoadManifest parses a SectionManifest document from path.
func LoadManifest(path string) (*SectionManifest, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m SectionManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// BuildRegistry reads every file named in m and installs it into a fresh
// sections.Registry, keyed by the manifest's section names (the same
// strings as sections.ID, e.g. "debug_info", "eh_frame").
func (m *SectionManifest) BuildRegistry() (*sections.Registry, error) {
	reg := sections.NewRegistry()
	for name, entry := range m.Sections {
		data, err := ioutil.ReadFile(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", name, err)
		}
		reg.Set(sections.ID(name), &sections.Section{
			Data:           data,
			VirtualAddress: entry.VirtualAddress,
			Owned:          true,
		})
	}
	return reg, nil
}
