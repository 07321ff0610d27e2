package line

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// GetLineNumberInfo decodes the .debug_line program at stmtListOffset
// (the owning compile unit's AT_stmt_list value) and returns the source
// location whose committed row brackets target, or a MissingDebugInfo
// error if the program ends without a match.
func GetLineNumberInfo(reg *sections.Registry, order binary.ByteOrder, stmtListOffset uint64, compDir string, strOffsetsBase uint64, nativeAddrSize int, target uint64) (SourceLocation, error) {
	data := reg.Bytes(sections.DebugLine)
	if data == nil {
		return SourceLocation{}, dwerr.Missing("no .debug_line section present")
	}
	cur := cursor.New(data, order)
	if err := cur.SeekTo(int(stmtListOffset)); err != nil {
		return SourceLocation{}, err
	}
	h, err := parseHeader(cur, reg, order, nativeAddrSize, compDir, strOffsetsBase)
	if err != nil {
		return SourceLocation{}, err
	}
	return run(h, cur, target)
}
