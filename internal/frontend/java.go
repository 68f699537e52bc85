package frontend

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kestrelsec/reach/internal/classfile"
	"github.com/kestrelsec/reach/internal/graph"
)

// javaFrontend analyzes compiled JVM bytecode rather than source. Call sites
// in bytecode are explicit invoke instructions, so no tree-sitter grammar is
// involved: each .class file is decoded and its invokes become edges.
type javaFrontend struct{}

func newJava() Frontend { return &javaFrontend{} }

func (f *javaFrontend) Language() string { return "java" }

// Targets whose invocation means the program resolves classes or methods by
// name at runtime.
var javaReflectionTargets = map[string]bool{
	"java/lang/Class.forName":            true,
	"java/lang/Class.getMethod":          true,
	"java/lang/Class.getDeclaredMethod":  true,
	"java/lang/reflect/Method.invoke":    true,
	"java/lang/ClassLoader.loadClass":    true,
	"java/lang/invoke/MethodHandle.invoke":      true,
	"java/lang/invoke/MethodHandle.invokeExact": true,
}

type rawInvoke struct {
	caller string
	name   string // qualified dotted name, e.g. com.example.Foo.bar
	kind   graph.InvokeKind
	conf   graph.Confidence
	file   string
}

func (f *javaFrontend) Parse(ctx context.Context, pkg PackageInfo) (*Result, error) {
	files, err := listFiles(pkg, "java")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	res := &Result{}
	defined := make(map[string][]string)
	imported := make(map[string]bool)
	var raw []rawInvoke

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasSuffix(path, ".jar") {
			f.parseJar(pkg, path, res, defined, imported, &raw)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			res.Failures = append(res.Failures, FileFailure{File: path, Err: err.Error()})
			continue
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			res.Failures = append(res.Failures, FileFailure{File: path, Err: err.Error()})
			continue
		}
		f.extract(pkg, cf, relPath(pkg, path), res, defined, imported, &raw)
	}

	f.resolve(res, defined, raw)
	return res, nil
}

// parseJar decodes every class entry of a jar archive. A bad entry fails
// that entry alone; a bad archive fails the whole jar as one file.
func (f *javaFrontend) parseJar(pkg PackageInfo, path string, res *Result, defined map[string][]string, imported map[string]bool, raw *[]rawInvoke) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		res.Failures = append(res.Failures, FileFailure{File: path, Err: err.Error()})
		return
	}
	defer zr.Close()

	entries := make([]*zip.File, 0, len(zr.File))
	for _, e := range zr.File {
		if strings.HasSuffix(e.Name, ".class") && !strings.HasSuffix(e.Name, "module-info.class") {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	base := relPath(pkg, path)
	for _, e := range entries {
		name := base + "!" + e.Name
		data, err := readZipEntry(e)
		if err != nil {
			res.Failures = append(res.Failures, FileFailure{File: name, Err: err.Error()})
			continue
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			res.Failures = append(res.Failures, FileFailure{File: name, Err: err.Error()})
			continue
		}
		f.extract(pkg, cf, name, res, defined, imported, raw)
	}
}

func readZipEntry(e *zip.File) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extract registers every method of one class and queues its invokes.
func (f *javaFrontend) extract(pkg PackageInfo, cf *classfile.File, file string, res *Result, defined map[string][]string, imported map[string]bool, raw *[]rawInvoke) {
	class := classfile.ExternalName(cf.Name)

	for _, m := range cf.Methods {
		qualified := class + "." + m.Name
		id := graph.FuncID(pkg.Name, qualified)
		visibility := "private"
		if m.Public() {
			visibility = "public"
		}
		res.Functions = append(res.Functions, graph.FunctionNode{
			ID:         id,
			Package:    pkg.Name,
			Name:       qualified,
			File:       file,
			Visibility: visibility,
			Origin:     pkg.Origin,
		})
		defined[qualified] = append(defined[qualified], id)
		defined[m.Name] = append(defined[m.Name], id)

		for _, inv := range m.Invokes {
			if inv.Kind == classfile.KindDynamic {
				// The bootstrap method picks the target at runtime. The synthetic
				// lambda bodies it can bind live in this same class file, so the
				// file is the escalation scope.
				res.Signals = append(res.Signals, graph.DynamicSignal{
					Package:    pkg.Name,
					File:       file,
					FunctionID: id,
					Construct:  graph.ConstructInvokeDynamic,
					Escalation: graph.EscalateFile,
				})
				if inv.Name != "" {
					*raw = append(*raw, rawInvoke{
						caller: id, name: inv.Name,
						kind: graph.InvokeDynamic, conf: graph.ConfidenceConservative,
						file: file,
					})
				}
				continue
			}

			if javaReflectionTargets[inv.Owner+"."+inv.Name] {
				res.Signals = append(res.Signals, graph.DynamicSignal{
					Package:    pkg.Name,
					File:       file,
					FunctionID: id,
					Construct:  graph.ConstructReflection,
					Escalation: graph.EscalateFunction,
				})
			}

			target := classfile.ExternalName(inv.Owner) + "." + inv.Name
			*raw = append(*raw, rawInvoke{
				caller: id, name: target,
				kind: invokeKindFor(inv.Kind), conf: confidenceFor(inv.Kind),
				file: file,
			})

			// Referenced external packages stand in for import declarations,
			// which bytecode does not carry.
			if p := ownerPackage(inv.Owner); p != "" && !imported[p] {
				imported[p] = true
				res.Imports = append(res.Imports, graph.Import{
					Source: p, Symbols: []string{classfile.SimpleName(inv.Owner)},
				})
			}
		}
	}
}

// resolve splits queued invokes into intra-package edges and unresolved
// cross-package references, mirroring the tree-sitter front-ends but keeping
// the invoke kind on every edge.
func (f *javaFrontend) resolve(res *Result, defined map[string][]string, raw []rawInvoke) {
	for _, c := range raw {
		conf := c.conf
		ids := defined[c.name]
		if ids == nil {
			if tail := tailName(c.name); tail != c.name {
				if ids = defined[tail]; ids != nil && confidenceWeaker(graph.ConfidenceHeuristic, conf) {
					conf = graph.ConfidenceHeuristic
				}
			}
		}
		if len(ids) > 0 {
			for _, id := range ids {
				res.Calls = append(res.Calls, graph.CallEdge{
					Caller: c.caller, Callee: id,
					Confidence: conf, Invoke: c.kind,
					File: c.file,
				})
			}
			continue
		}
		res.Unresolved = append(res.Unresolved, graph.UnresolvedCall{
			Caller: c.caller, Name: c.name, File: c.file,
		})
	}
}

// invokestatic and invokespecial name their exact target; invokevirtual and
// invokeinterface dispatch on the receiver, so an override elsewhere may run
// instead of the named method.
func confidenceFor(k classfile.Kind) graph.Confidence {
	switch k {
	case classfile.KindStatic, classfile.KindSpecial:
		return graph.ConfidenceExact
	case classfile.KindVirtual, classfile.KindInterface:
		return graph.ConfidenceHeuristic
	}
	return graph.ConfidenceConservative
}

func invokeKindFor(k classfile.Kind) graph.InvokeKind {
	switch k {
	case classfile.KindVirtual:
		return graph.InvokeVirtual
	case classfile.KindSpecial:
		return graph.InvokeSpecial
	case classfile.KindStatic:
		return graph.InvokeStatic
	case classfile.KindInterface:
		return graph.InvokeInterface
	}
	return graph.InvokeDynamic
}

// confidenceWeaker reports whether a is weaker than b.
func confidenceWeaker(a, b graph.Confidence) bool {
	rank := map[graph.Confidence]int{
		graph.ConfidenceExact:        3,
		graph.ConfidenceHeuristic:    2,
		graph.ConfidenceConservative: 1,
	}
	return rank[a] < rank[b]
}

// ownerPackage returns the dotted package of an internal class name, empty
// for classes in the default package.
func ownerPackage(internal string) string {
	i := strings.LastIndexByte(internal, '/')
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(internal[:i], "/", ".")
}
