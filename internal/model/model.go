// Package model defines the entities of a code graph snapshot.
//
// All identifiers are opaque UUID strings scoped to a Snapshot. Entities are
// immutable once written, with one exception: a CallSite's Resolved flag is
// flipped to true by the call resolver and never reverted within a snapshot.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType describes where a repository came from.
type SourceType string

const (
	SourceDirectory SourceType = "directory"
	SourceGitLocal  SourceType = "git_local"
	SourceGitRemote SourceType = "git_remote"
)

// SnapshotStatus is the lifecycle state of one ingestion run.
type SnapshotStatus string

const (
	SnapshotPending    SnapshotStatus = "pending"
	SnapshotProcessing SnapshotStatus = "processing"
	SnapshotCompleted  SnapshotStatus = "completed"
	SnapshotFailed     SnapshotStatus = "failed"
)

// SymbolKind classifies a code definition.
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
	KindClass    SymbolKind = "class"
	KindVariable SymbolKind = "variable"
)

// CallKind classifies a call expression.
type CallKind string

const (
	CallDirect      CallKind = "direct"      // foo()
	CallMethod      CallKind = "method"      // obj.foo()
	CallConstructor CallKind = "constructor" // new Foo()
)

// ChunkType distinguishes the two retrieval units derived per symbol.
type ChunkType string

const (
	ChunkParent ChunkType = "parent"
	ChunkChild  ChunkType = "child"
)

// TypeCategory buckets a type annotation by lexical shape.
type TypeCategory string

const (
	TypePrimitive TypeCategory = "primitive"
	TypeClass     TypeCategory = "class"
	TypeUnion     TypeCategory = "union"
	TypeGeneric   TypeCategory = "generic"
	TypeFunction  TypeCategory = "function"
	TypeAny       TypeCategory = "any"
)

// Edge types persisted in the graph.
const (
	EdgeImports    = "IMPORTS"
	EdgeResolvesTo = "RESOLVES_TO"
	EdgeHasChunk   = "HAS_CHUNK"
	EdgeDefines    = "DEFINES_SYMBOL"
	EdgeHandles    = "HANDLES"
)

// Edge is one graph relationship. Module carries the import statement's
// module text for IMPORTS edges, where it is part of the uniqueness key.
type Edge struct {
	SourceID string
	TargetID string
	Type     string
	Module   string
}

// Repo is a logical codebase.
type Repo struct {
	ID         string
	Name       string
	SourceType SourceType
	RemoteURL  string
	CreatedAt  time.Time
}

// Snapshot is one full analysis pass of a Repo. Immutable once its status
// reaches completed or failed.
type Snapshot struct {
	ID          string
	RepoID      string
	CommitHash  string
	Status      SnapshotStatus
	LangProfile map[string]int // language -> file count
	CreatedAt   time.Time
}

// File is one source file in a snapshot.
type File struct {
	ID         string
	SnapshotID string
	Path       string // relative to repo root, always forward-slash separated
	Language   string
	Hash       string // xxh3-128 hex of content
	LOC        int
	IsTest     bool
	Tags       []string
}

// SymbolMeta is the schema-light metadata bag attached to a Symbol. A fixed
// set of optional fields rather than an open map, so the model stays
// auditable.
type SymbolMeta struct {
	IsAsync    bool     `json:"is_async,omitempty"`
	IsMethod   bool     `json:"is_method,omitempty"`
	IsExported bool     `json:"is_exported,omitempty"`
	Decorators []string `json:"decorators,omitempty"`
	Bases      []string `json:"bases,omitempty"`
	Framework  string   `json:"framework,omitempty"`
}

// Symbol is a named code definition. QualName is unique within the defining
// file and is the key the resolvers match against.
type Symbol struct {
	ID         string
	SnapshotID string
	FileID     string
	Kind       SymbolKind
	Name       string
	QualName   string
	Signature  string
	StartLine  int
	EndLine    int
	Meta       SymbolMeta
}

// ImportedName is one name pulled in by a from-import.
type ImportedName struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

// Import is one import/require statement, recorded verbatim by an extractor.
// RelativeDepth counts leading dots (0 for absolute imports).
type Import struct {
	ID            string
	SnapshotID    string
	FileID        string
	Module        string
	Names         []ImportedName
	Alias         string
	RelativeDepth int
	Line          int
}

// CallSite is one call expression inside a known symbol's body. Created
// unresolved; the call resolver flips Resolved in a separate batch phase.
type CallSite struct {
	ID             string
	SnapshotID     string
	CallerSymbolID string
	CalleeName     string
	Kind           CallKind
	Line           int
	Resolved       bool
}

// TypeAnnotation records a declared type on a symbol.
type TypeAnnotation struct {
	ID         string
	SnapshotID string
	SymbolID   string
	TypeName   string
	Category   TypeCategory
	Optional   bool
	IsArray    bool
}

// Chunk is a retrieval unit. A child chunk is the verbatim symbol body; a
// parent chunk is the surrounding context window plus the file's import
// block. Children always carry their parent's id and share its symbol.
type Chunk struct {
	ID            string
	SnapshotID    string
	FileID        string
	SymbolID      string
	ParentChunkID string // empty for parent chunks
	Type          ChunkType
	Content       string
	StartLine     int
	EndLine       int
	// HasImports and HasDocstring describe parent-chunk window contents.
	HasImports   bool
	HasDocstring bool
	Embedding    []float32 // nil until embedded; all-zero after a failed batch
}

// Endpoint is a detected route registration, an annotation on top of the
// symbol graph rather than a resolved entity.
type Endpoint struct {
	ID         string
	SnapshotID string
	FileID     string
	SymbolID   string // handler symbol, linked by name at persist time
	Method     string
	Path       string
	Tags       []string
	Framework  string
}

// NewID returns a fresh opaque entity id.
func NewID() string {
	return uuid.NewString()
}
