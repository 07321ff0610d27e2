// Package sections holds the table of named DWARF/eh_frame byte ranges a
// Dwarf object is built from. It is deliberately ignorant of how those
// bytes were extracted from an executable (that is the concern of
// internal/containersec, an external collaborator per the design notes);
// it only tracks ownership and the optional virtual-address relationship
// between a section's bytes and the address they are mapped at at runtime.
package sections

// ID names one of the (up to 14) sections the core understands.
type ID string

const (
	DebugInfo       ID = "debug_info"
	DebugAbbrev     ID = "debug_abbrev"
	DebugStr        ID = "debug_str"
	DebugStrOffsets ID = "debug_str_offsets"
	DebugLine       ID = "debug_line"
	DebugLineStr    ID = "debug_line_str"
	DebugRanges     ID = "debug_ranges"
	DebugLoclists   ID = "debug_loclists"
	DebugRnglists   ID = "debug_rnglists"
	DebugAddr       ID = "debug_addr"
	DebugNames      ID = "debug_names"
	DebugFrame      ID = "debug_frame"
	EhFrame         ID = "eh_frame"
	EhFrameHdr      ID = "eh_frame_hdr"
)

// All lists every section ID the core will look for.
var All = []ID{
	DebugInfo, DebugAbbrev, DebugStr, DebugStrOffsets, DebugLine, DebugLineStr,
	DebugRanges, DebugLoclists, DebugRnglists, DebugAddr, DebugNames,
	DebugFrame, EhFrame, EhFrameHdr,
}

// Section is a named byte range plus its optional runtime mapping.
//
// Invariant: if VirtualAddress is non-nil, the runtime pointer for byte i
// of Data is *VirtualAddress + i.
type Section struct {
	Data           []byte
	VirtualAddress *uint64
	Owned          bool // if true, Data is released (set to nil) at teardown
}

// VirtualOffset returns base + *VirtualAddress - pointer(Data[0]); taking a
// byte's in-slice "pretend address" to be its index, pointer(Data[0]) is 0
// and the result is base + *VirtualAddress: the offset to add to a byte's
// index to get a caller-chosen base-relative runtime address.
func (s *Section) VirtualOffset(base uint64) (uint64, bool) {
	if s.VirtualAddress == nil {
		return 0, false
	}
	return base + *s.VirtualAddress, true
}

// Registry is the table of sections a Dwarf object was opened with.
type Registry struct {
	sections map[ID]*Section
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sections: make(map[ID]*Section)}
}

// Set installs sec under id, replacing any previous entry.
func (r *Registry) Set(id ID, sec *Section) {
	r.sections[id] = sec
}

// Get returns the section installed under id, or nil if none was set.
func (r *Registry) Get(id ID) *Section {
	return r.sections[id]
}

// Bytes returns the data of the section installed under id, or nil.
func (r *Registry) Bytes(id ID) []byte {
	sec := r.sections[id]
	if sec == nil {
		return nil
	}
	return sec.Data
}

// Has reports whether a non-empty section is installed under id.
func (r *Registry) Has(id ID) bool {
	sec := r.sections[id]
	return sec != nil && len(sec.Data) > 0
}

// Teardown releases all owned section buffers.
func (r *Registry) Teardown() {
	for _, sec := range r.sections {
		if sec.Owned {
			sec.Data = nil
		}
	}
}
