package lang

// Language represents a supported programming language.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Go         Language = "go"
)

// Family groups languages that share one extractor implementation.
type Family string

const (
	FamilyPython Family = "python"
	FamilyJS     Family = "javascript" // javascript, typescript, tsx
	FamilyGo     Family = "go"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Python, JavaScript, TypeScript, TSX, Go}
}

// Spec describes per-language behavior shared by the classifier and the
// resolvers.
type Spec struct {
	Language       Language
	Family         Family
	FileExtensions []string
	// HierarchicalModules: whether imports of this language resolve against
	// a path-derived module map.
	HierarchicalModules bool
	// PackageRootFiles collapse to their containing package name when
	// building module names (Python __init__, JS index).
	PackageRootFiles []string
	// StaticTypes reports whether the language carries static type syntax
	// worth extracting.
	StaticTypes bool
}

// registry maps file extensions to language specs.
var registry = map[string]*Spec{}

// Register adds a Spec to the global registry.
func Register(spec *Spec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

func init() {
	Register(&Spec{
		Language:            Python,
		Family:              FamilyPython,
		FileExtensions:      []string{".py", ".pyw"},
		HierarchicalModules: true,
		PackageRootFiles:    []string{"__init__"},
		StaticTypes:         true,
	})
	Register(&Spec{
		Language:            JavaScript,
		Family:              FamilyJS,
		FileExtensions:      []string{".js", ".jsx", ".mjs"},
		HierarchicalModules: true,
		PackageRootFiles:    []string{"index"},
	})
	Register(&Spec{
		Language:            TypeScript,
		Family:              FamilyJS,
		FileExtensions:      []string{".ts"},
		HierarchicalModules: true,
		PackageRootFiles:    []string{"index"},
		StaticTypes:         true,
	})
	Register(&Spec{
		Language:            TSX,
		Family:              FamilyJS,
		FileExtensions:      []string{".tsx"},
		HierarchicalModules: true,
		PackageRootFiles:    []string{"index"},
		StaticTypes:         true,
	})
	Register(&Spec{
		Language:       Go,
		Family:         FamilyGo,
		FileExtensions: []string{".go"},
		StaticTypes:    true,
	})
}

// ForExtension returns the Spec for a file extension (e.g. ".py").
func ForExtension(ext string) *Spec {
	return registry[ext]
}

// ForLanguage returns the Spec for a language.
func ForLanguage(l Language) *Spec {
	for _, spec := range registry {
		if spec.Language == l {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}
