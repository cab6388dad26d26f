// Command fibermapgen scans a target package for functions tagged with a
// //pergyra:role <roleId> <schedulerTag> <priority> comment and emits a Go
// source file defining a FiberMap literal wiring those functions together,
// the declarative-at-compile-time counterpart to the config package's
// YAML party manifest loader.
//
// It plays the same role in this module that cmd/iofn plays for iolang:
// both use golang.org/x/tools/go/packages to find functions matching a
// convention in a target package's source and emit Go glue from it.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"go/types"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

var roleTag = regexp.MustCompile(`^//pergyra:role\s+(\S+)\s+(\S+)\s+(\S+)\s*$`)

type role struct {
	funcName     string
	roleId       string
	schedulerTag string
	priority     string
}

func main() {
	var pkgPath, partyType, outPath string
	flag.StringVar(&pkgPath, "package", "", "import path of the package to scan for //pergyra:role functions")
	flag.StringVar(&partyType, "party", "Party", "party type name for the generated FiberMap")
	flag.StringVar(&outPath, "out", "fibermap_gen.go", "output file path")
	flag.Parse()

	if pkgPath == "" {
		fail("missing required -package flag")
	}

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Fset: fset,
	}
	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		fail("loading package:", err)
	}
	if len(pkgs) == 0 {
		fail("no packages found for", pkgPath)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		fail("package has errors:", pkg.Errors[0])
	}

	fnType := lookupFiberFuncType(pkg)

	var roles []role
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Doc == nil {
				continue
			}
			for _, c := range fd.Doc.List {
				m := roleTag.FindStringSubmatch(c.Text)
				if m == nil {
					continue
				}
				if fnType != nil {
					obj := pkg.TypesInfo.ObjectOf(fd.Name)
					if obj == nil || !types.AssignableTo(obj.Type(), fnType) {
						fail(fd.Name.Name, "is tagged //pergyra:role but its signature is not assignable to fiber.Func")
					}
				}
				roles = append(roles, role{
					funcName:     fd.Name.Name,
					roleId:       m[1],
					schedulerTag: m[2],
					priority:     m[3],
				})
			}
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].roleId < roles[j].roleId })

	src := generate(pkg.Name, partyType, roles)
	formatted, err := format.Source(src)
	if err != nil {
		fail("formatting generated source:", err)
	}
	if err := os.WriteFile(outPath, formatted, 0o644); err != nil {
		fail("writing", outPath, ":", err)
	}
}

// lookupFiberFuncType finds fiber.Func's underlying type if the fiber
// package is among the target's imports, so generated roles can be
// signature-checked the same way iofn checks against its local Fn type.
// It returns nil (skipping the check) if fiber is not imported, since a
// manifest-only package has no reason to import it directly.
func lookupFiberFuncType(pkg *packages.Package) types.Type {
	for path, imp := range pkg.Imports {
		if strings.HasSuffix(path, "/fiber") {
			obj := imp.Types.Scope().Lookup("Func")
			if t, ok := obj.(*types.TypeName); ok {
				return t.Type().Underlying()
			}
		}
	}
	return nil
}

func generate(pkgName, partyType string, roles []role) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "// Code generated by fibermapgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	fmt.Fprintf(&b, "import (\n\t\"github.com/pergyra-lang/core/fiber\"\n\t\"github.com/pergyra-lang/core/party\"\n)\n\n")
	fmt.Fprintf(&b, "func Build%sFiberMap() *party.FiberMap {\n", partyType)
	fmt.Fprintf(&b, "\tentries := []party.FiberMapEntry{\n")
	for _, r := range roles {
		fmt.Fprintf(&b, "\t\t{RoleId: %s, ParallelFn: %s, SchedulerTag: party.%s, Priority: fiber.%s},\n",
			strconv.Quote(r.roleId), r.funcName, r.schedulerTag, r.priority)
	}
	fmt.Fprintf(&b, "\t}\n")
	fmt.Fprintf(&b, "\treturn party.NewFiberMap(%s, entries, true)\n", strconv.Quote(partyType))
	fmt.Fprintf(&b, "}\n")
	return b.Bytes()
}

func fail(args ...interface{}) {
	fmt.Fprintln(os.Stderr, append([]interface{}{"fibermapgen:"}, args...)...)
	os.Exit(1)
}
