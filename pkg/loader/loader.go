// Package loader provides utilities to load and register model schemas from
// Go source files and YAML model definitions.
package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/marshallshelly/pebble-record/pkg/schema"
)

// Registrar is an interface for registering schemas.
type Registrar interface {
	Register(s *schema.Schema) error
}

// LoadModelsFromPath scans a file or directory for model definitions and
// registers them using the provided registrar. It returns the number of
// models registered.
//
// Supports:
//   - .go files: structs with po tags, table name from a "// table_name:" comment
//     or the pluralized snake_case struct name
//   - .yaml/.yml files: a top-level models list of schemas
//   - directories, scanned recursively for both
func LoadModelsFromPath(path string, registrar Registrar) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat path: %w", err)
	}

	var filesToParse []string

	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isModelFile(d.Name()) {
				filesToParse = append(filesToParse, p)
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to walk directory: %w", err)
		}
	} else {
		if !isModelFile(filepath.Base(path)) {
			return 0, fmt.Errorf("file must have .go, .yaml or .yml extension")
		}
		filesToParse = append(filesToParse, path)
	}

	if len(filesToParse) == 0 {
		return 0, fmt.Errorf("no model files found in %s", path)
	}

	modelsRegistered := 0
	for _, file := range filesToParse {
		var schemas []*schema.Schema
		var err error
		if strings.HasSuffix(file, ".go") {
			schemas, err = parseGoFile(file)
		} else {
			schemas, err = parseYAMLFile(file)
		}
		if err != nil {
			return modelsRegistered, fmt.Errorf("failed to load models from %s: %w", file, err)
		}

		for _, s := range schemas {
			if err := registrar.Register(s); err != nil {
				return modelsRegistered, fmt.Errorf("failed to register %s: %w", s.Table, err)
			}
			modelsRegistered++
		}
	}

	return modelsRegistered, nil
}

func isModelFile(name string) bool {
	switch filepath.Ext(name) {
	case ".go":
		return !strings.HasSuffix(name, "_test.go")
	case ".yaml", ".yml":
		return true
	}
	return false
}

// parseGoFile builds a schema for every struct in filename that carries po tags.
func parseGoFile(filename string) ([]*schema.Schema, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	var schemas []*schema.Schema
	for _, decl := range node.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}

		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok || !hasPebbleTags(structType) {
				continue
			}

			structName := typeSpec.Name.Name
			tableName := inflect.Tableize(structName)
			for _, doc := range []*ast.CommentGroup{typeSpec.Doc, genDecl.Doc} {
				if name := tableNameFromComments(doc); name != "" {
					tableName = name
					break
				}
			}

			s, err := schema.Build(tableName, fieldSpecsFromAST(structType))
			if err != nil {
				return nil, fmt.Errorf("struct %s: %w", structName, err)
			}
			schemas = append(schemas, s)
		}
	}
	return schemas, nil
}

// tableNameFromComments finds a "// table_name: name" line.
func tableNameFromComments(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	for _, comment := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(comment.Text, "//"))
		if name, ok := strings.CutPrefix(text, "table_name:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// fieldSpecsFromAST converts tagged struct fields into field specs. The field
// type is inferred from the type expression where possible.
func fieldSpecsFromAST(structType *ast.StructType) []schema.FieldSpec {
	var specs []schema.FieldSpec
	if structType.Fields == nil {
		return specs
	}

	for _, field := range structType.Fields.List {
		if len(field.Names) == 0 || field.Tag == nil {
			continue // embedded or untagged
		}
		raw, err := strconv.Unquote(field.Tag.Value)
		if err != nil {
			continue
		}
		tag := reflect.StructTag(raw)
		poTag := tag.Get(schema.StructTagKey)
		if poTag == "" || poTag == "-" {
			continue
		}

		fieldType, nullable := typeOfExpr(field.Type)
		for _, name := range field.Names {
			specs = append(specs, schema.FieldSpec{
				GoName:   name.Name,
				Type:     fieldType,
				Nullable: nullable,
				Tag:      poTag,
				Rules:    tag.Get(schema.RulesTagKey),
			})
		}
	}
	return specs
}

// typeOfExpr maps a Go type expression to a field type without type checking.
func typeOfExpr(expr ast.Expr) (schema.FieldType, bool) {
	switch e := expr.(type) {
	case *ast.StarExpr:
		t, _ := typeOfExpr(e.X)
		return t, true
	case *ast.ArrayType:
		if ident, ok := e.Elt.(*ast.Ident); ok && (ident.Name == "byte" || ident.Name == "uint8") {
			return schema.TypeBytes, true
		}
		return schema.TypeJSON, true
	case *ast.MapType, *ast.InterfaceType, *ast.StructType:
		return schema.TypeJSON, true
	case *ast.SelectorExpr:
		pkg, _ := e.X.(*ast.Ident)
		if pkg == nil {
			return schema.TypeString, false
		}
		switch pkg.Name + "." + e.Sel.Name {
		case "time.Time":
			return schema.TypeTime, false
		case "uuid.UUID":
			return schema.TypeUUID, false
		case "json.RawMessage":
			return schema.TypeJSON, true
		}
		return schema.TypeString, false
	case *ast.Ident:
		switch e.Name {
		case "bool":
			return schema.TypeBoolean, false
		case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
			return schema.TypeInteger, false
		case "float32", "float64":
			return schema.TypeFloat, false
		case "any":
			return schema.TypeJSON, true
		}
	}
	return schema.TypeString, false
}

// hasPebbleTags checks if a struct has any fields with pebble tags.
func hasPebbleTags(structType *ast.StructType) bool {
	if structType.Fields == nil {
		return false
	}
	for _, field := range structType.Fields.List {
		if field.Tag != nil && strings.Contains(field.Tag.Value, schema.StructTagKey+`:"`) {
			return true
		}
	}
	return false
}

// modelFile is the layout of a YAML model definition file.
type modelFile struct {
	Models []yaml.Node `yaml:"models"`
}

// parseYAMLFile reads schemas from a YAML file. Timestamps default to on
// unless a model sets timestamps: false.
func parseYAMLFile(filename string) ([]*schema.Schema, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a models document into schemas.
func ParseYAML(data []byte) ([]*schema.Schema, error) {
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	schemas := make([]*schema.Schema, 0, len(file.Models))
	for i := range file.Models {
		node := &file.Models[i]

		s := &schema.Schema{}
		if err := node.Decode(s); err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		var flags struct {
			Timestamps *bool `yaml:"timestamps"`
		}
		if err := node.Decode(&flags); err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		if flags.Timestamps == nil {
			s.Timestamps = true
		}

		if s.Table == "" {
			return nil, fmt.Errorf("model %d: table is required", i)
		}
		if err := s.Normalize(); err != nil {
			return nil, fmt.Errorf("model %s: %w", s.Table, err)
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}
