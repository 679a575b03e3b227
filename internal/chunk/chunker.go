// Package chunk derives retrieval units from symbols: a child chunk holding
// the exact symbol body and a parent chunk holding its surrounding context.
package chunk

import (
	"strings"

	"github.com/lodestone-ai/codegraph/internal/model"
)

// importScanLines bounds the leading-import scan for parent context.
const importScanLines = 50

// Chunker is deterministic: the same file text, symbol bounds and context
// radius always produce the same chunk pair.
type Chunker struct {
	contextLines int
}

func New(contextLines int) *Chunker {
	return &Chunker{contextLines: contextLines}
}

// ChunkSymbol builds the parent/child pair for one symbol. The child always
// carries the parent's id and the same symbol.
func (c *Chunker) ChunkSymbol(sym model.Symbol, fileContent string) (parent, child model.Chunk) {
	lines := strings.Split(fileContent, "\n")

	parentStart := max(1, sym.StartLine-c.contextLines)
	parentEnd := min(len(lines), sym.EndLine+c.contextLines)

	imports := leadingImports(lines)
	window := strings.Join(lines[parentStart-1:parentEnd], "\n")
	parentContent := window
	if imports != "" {
		parentContent = imports + "\n\n" + window
	}

	parent = model.Chunk{
		ID:           model.NewID(),
		SnapshotID:   sym.SnapshotID,
		FileID:       sym.FileID,
		SymbolID:     sym.ID,
		Type:         model.ChunkParent,
		Content:      parentContent,
		StartLine:    parentStart,
		EndLine:      parentEnd,
		HasImports:   hasImports(parentContent),
		HasDocstring: hasDocstring(parentContent),
	}

	childStart := clamp(sym.StartLine, 1, len(lines))
	childEnd := clamp(sym.EndLine, childStart, len(lines))
	child = model.Chunk{
		ID:            model.NewID(),
		SnapshotID:    sym.SnapshotID,
		FileID:        sym.FileID,
		SymbolID:      sym.ID,
		ParentChunkID: parent.ID,
		Type:          model.ChunkChild,
		Content:       strings.Join(lines[childStart-1:childEnd], "\n"),
		StartLine:     childStart,
		EndLine:       childEnd,
	}
	return parent, child
}

// ChunkFile chunks every symbol of one file, parents before their children.
func (c *Chunker) ChunkFile(symbols []model.Symbol, fileContent string) []model.Chunk {
	chunks := make([]model.Chunk, 0, 2*len(symbols))
	for _, sym := range symbols {
		parent, child := c.ChunkSymbol(sym, fileContent)
		chunks = append(chunks, parent, child)
	}
	return chunks
}

// leadingImports collects import-looking lines from the top of the file.
func leadingImports(lines []string) string {
	limit := min(len(lines), importScanLines)
	var imports []string
	for _, line := range lines[:limit] {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "import "),
			strings.HasPrefix(stripped, "from "),
			strings.HasPrefix(stripped, "import{"):
			imports = append(imports, line)
		case strings.HasPrefix(stripped, "const "),
			strings.HasPrefix(stripped, "let "),
			strings.HasPrefix(stripped, "var "):
			if strings.Contains(stripped, "require(") {
				imports = append(imports, line)
			}
		}
	}
	return strings.Join(imports, "\n")
}

func hasImports(content string) bool {
	return strings.Contains(content, "import ") ||
		strings.Contains(content, "from ") ||
		strings.Contains(content, "require(")
}

func hasDocstring(content string) bool {
	return strings.Contains(content, `"""`) ||
		strings.Contains(content, "'''") ||
		strings.Contains(content, "/**")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
