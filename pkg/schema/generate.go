// Package schema generates JSON schemas for dotup configuration types.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	"golang.org/x/mod/modfile"
)

// Generator reflects a Go configuration type into a JSON schema. Fields
// tagged `json:",inline"` are flattened into their parent definition,
// matching how the YAML codec decodes them.
type Generator struct {
	obj  any
	pkgs []string
}

// NewGenerator creates a schema generator for obj. Doc comments are read
// from the listed package import paths, which must belong to the current
// module.
func NewGenerator(obj any, pkgPaths ...string) *Generator {
	return &Generator{
		obj:  obj,
		pkgs: pkgPaths,
	}
}

// Generate produces the indented JSON schema document.
func (g *Generator) Generate() ([]byte, error) {
	r := &jsonschema.Reflector{
		Namer: namer(baseType(reflect.TypeOf(g.obj))),
	}

	root, err := findModuleRoot()
	if err != nil {
		return nil, err
	}

	modPath, err := modulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}

	for _, pkgPath := range g.pkgs {
		rel, ok := strings.CutPrefix(pkgPath, modPath+"/")
		if !ok {
			return nil, fmt.Errorf("package %s is outside module %s", pkgPath, modPath)
		}

		err := r.AddGoComments(pkgPath, filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read comments for %s: %w", pkgPath, err)
		}
	}

	s := r.Reflect(g.obj)
	flattenInline(baseType(reflect.TypeOf(g.obj)), s)

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	err = enc.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return buf.Bytes(), nil
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t
}

// namer disambiguates definitions whose type name collides with the root
// type by prefixing the package name, e.g. ui.Config becomes UiConfig. The
// root type keeps its bare name.
func namer(root reflect.Type) func(reflect.Type) string {
	return func(t reflect.Type) string {
		if t == root || t.Name() != root.Name() {
			return ""
		}

		pkgBase := path.Base(t.PkgPath())

		return strings.ToUpper(pkgBase[:1]) + pkgBase[1:] + t.Name()
	}
}

// flattenInline merges the definitions referenced by `json:",inline"` fields
// into the root definition, preserving property order and required fields.
// The merged definitions are dropped, since inline types are not addressable
// on their own.
func flattenInline(t reflect.Type, s *jsonschema.Schema) {
	if t.Kind() != reflect.Struct {
		return
	}

	rootDef, ok := s.Definitions[strings.TrimPrefix(s.Ref, "#/$defs/")]
	if !ok {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// Anonymous inline fields are already flattened by the reflector.
		if f.Anonymous || !isInline(f.Tag.Get("json")) {
			continue
		}

		prop, ok := rootDef.Properties.Get(f.Name)
		if !ok {
			continue
		}

		name := strings.TrimPrefix(prop.Ref, "#/$defs/")

		src, ok := s.Definitions[name]
		if !ok {
			continue
		}

		splice(rootDef, f.Name, src)
		delete(s.Definitions, name)
	}
}

func isInline(tag string) bool {
	parts := strings.Split(tag, ",")

	return parts[0] == "" && slices.Contains(parts[1:], "inline")
}

// splice replaces the named property with src's properties at the same
// position, and substitutes src's required fields for the property name.
func splice(def *jsonschema.Schema, name string, src *jsonschema.Schema) {
	merged := jsonschema.NewProperties()

	for pair := def.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != name {
			merged.Set(pair.Key, pair.Value)

			continue
		}

		if src.Properties == nil {
			continue
		}

		for sp := src.Properties.Oldest(); sp != nil; sp = sp.Next() {
			merged.Set(sp.Key, sp.Value)
		}
	}

	def.Properties = merged

	required := make([]string, 0, len(def.Required)+len(src.Required))

	for _, field := range def.Required {
		if field == name {
			required = append(required, src.Required...)

			continue
		}

		required = append(required, field)
	}

	def.Required = required
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		_, err := os.Stat(filepath.Join(dir, "go.mod"))
		if err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found in any parent directory")
		}

		dir = parent
	}
}

func modulePath(goModPath string) (string, error) {
	b, err := os.ReadFile(goModPath) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}

	modPath := modfile.ModulePath(b)
	if modPath == "" {
		return "", fmt.Errorf("no module path in %s", goModPath)
	}

	return modPath, nil
}
