// Package resolve maps per-file extraction output onto cross-file graph
// edges: import statements to files, call sites to symbols. Both resolvers
// need the snapshot's complete file and symbol sets, so they run strictly
// after the extraction barrier.
package resolve

import (
	"log/slog"
	"path"
	"strings"

	"github.com/lodestone-ai/codegraph/internal/lang"
	"github.com/lodestone-ai/codegraph/internal/model"
)

// ImportResolver maps module names to files within one snapshot. Built once
// per snapshot from the full file set.
type ImportResolver struct {
	log *slog.Logger

	moduleToFile map[string]string // canonical module name -> file id
	fileByID     map[string]model.File
}

// NewImportResolver precomputes the module-name map for every file whose
// language uses hierarchical module naming. On a collision the earlier file
// wins and the loser is logged; its importers will simply fail to resolve.
func NewImportResolver(log *slog.Logger, files []model.File) *ImportResolver {
	r := &ImportResolver{
		log:          log,
		moduleToFile: make(map[string]string, len(files)),
		fileByID:     make(map[string]model.File, len(files)),
	}
	for _, f := range files {
		r.fileByID[f.ID] = f
		module, ok := moduleForPath(f.Path)
		if !ok || module == "" {
			continue
		}
		if prev, exists := r.moduleToFile[module]; exists {
			r.log.Warn("resolve.module_collision",
				"module", module,
				"kept", r.fileByID[prev].Path,
				"dropped", f.Path)
			continue
		}
		r.moduleToFile[module] = f.ID
	}
	return r
}

// moduleForPath converts a slash-relative path to a canonical module name:
// strip the extension, collapse a package-root file to its directory, join
// segments with dots.
func moduleForPath(relPath string) (string, bool) {
	ext := path.Ext(relPath)
	spec := lang.ForExtension(ext)
	if spec == nil || !spec.HierarchicalModules {
		return "", false
	}
	p := strings.TrimSuffix(relPath, ext)
	base := path.Base(p)
	for _, root := range spec.PackageRootFiles {
		if base == root {
			p = path.Dir(p)
			if p == "." {
				p = ""
			}
			break
		}
	}
	return strings.ReplaceAll(p, "/", "."), true
}

// Resolve maps one snapshot's imports to IMPORTS edges between files.
// Duplicate statements of the same module between the same file pair collapse
// last-write-wins. Unresolved imports are external and produce no edge.
func (r *ImportResolver) Resolve(imports []model.Import) []model.Edge {
	type key struct{ src, dst, module string }
	byKey := make(map[key]model.Edge)
	var order []key

	for _, imp := range imports {
		targetID := r.resolveOne(imp)
		if targetID == "" || targetID == imp.FileID {
			continue
		}
		k := key{imp.FileID, targetID, imp.Module}
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = model.Edge{
			SourceID: imp.FileID,
			TargetID: targetID,
			Type:     model.EdgeImports,
			Module:   imp.Module,
		}
	}

	edges := make([]model.Edge, 0, len(order))
	for _, k := range order {
		edges = append(edges, byKey[k])
	}
	return edges
}

func (r *ImportResolver) resolveOne(imp model.Import) string {
	src, ok := r.fileByID[imp.FileID]
	if !ok {
		return ""
	}
	spec := lang.ForExtension(path.Ext(src.Path))
	if spec == nil || !spec.HierarchicalModules {
		return ""
	}

	if imp.RelativeDepth > 0 {
		if spec.Family == lang.FamilyJS {
			return r.resolveJSRelative(src.Path, imp.Module)
		}
		return r.resolvePyRelative(src.Path, imp.Module, imp.RelativeDepth)
	}
	return r.lookupAbsolute(imp.Module)
}

// lookupAbsolute matches a canonical module name exactly; moduleForPath has
// already collapsed package-root files (__init__, index) to their directory
// name, so no suffix variants exist in the map.
func (r *ImportResolver) lookupAbsolute(module string) string {
	return r.moduleToFile[module]
}

// resolvePyRelative resolves a dotted relative import: depth d climbs d
// levels up from the importing file's containing package, then descends the
// remainder.
func (r *ImportResolver) resolvePyRelative(srcPath, module string, depth int) string {
	srcModule, ok := moduleForPath(srcPath)
	if !ok || srcModule == "" {
		return ""
	}
	remainder := strings.TrimLeft(module, ".")

	pkg := strings.Split(srcModule, ".")
	if !isPackageRoot(srcPath) {
		pkg = pkg[:len(pkg)-1]
	}
	if depth > len(pkg) {
		return ""
	}
	base := pkg[:len(pkg)-depth]

	parts := base
	if remainder != "" {
		parts = append(append([]string{}, base...), remainder)
	}
	return r.lookupAbsolute(strings.Join(parts, "."))
}

// resolveJSRelative joins the specifier onto the importing file's directory
// and resolves the cleaned path as a module name.
func (r *ImportResolver) resolveJSRelative(srcPath, module string) string {
	joined := path.Join(path.Dir(srcPath), module)
	if strings.HasPrefix(joined, "..") {
		return ""
	}
	return r.lookupAbsolute(strings.ReplaceAll(joined, "/", "."))
}

func isPackageRoot(relPath string) bool {
	ext := path.Ext(relPath)
	spec := lang.ForExtension(ext)
	if spec == nil {
		return false
	}
	base := strings.TrimSuffix(path.Base(relPath), ext)
	for _, root := range spec.PackageRootFiles {
		if base == root {
			return true
		}
	}
	return false
}
