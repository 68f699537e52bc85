// Package classfile decodes JVM class files just far enough for call-graph
// extraction: constant pool, class identity, and per-method invoke
// instructions. It deliberately ignores everything else (stack maps,
// generics signatures, debug tables).
package classfile

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const magic = 0xCAFEBABE

// Constant pool tags (JVMS §4.4).
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Kind is the call-instruction variant that produced an invoke.
type Kind string

const (
	KindVirtual   Kind = "virtual"
	KindSpecial   Kind = "special"
	KindStatic    Kind = "static"
	KindInterface Kind = "interface"
	// KindDynamic is invokedynamic: the target is bound at runtime by a
	// bootstrap method and cannot be resolved statically.
	KindDynamic Kind = "dynamic"
)

// Invoke is one call instruction inside a method body.
type Invoke struct {
	Kind       Kind
	Owner      string // internal name of the target class, e.g. java/util/List
	Name       string
	Descriptor string
	PC         int
}

// Method is one method of a class, with the invokes found in its Code
// attribute.
type Method struct {
	Name       string
	Descriptor string
	Flags      uint16
	Invokes    []Invoke
	HasCode    bool
}

// Public reports whether the method has ACC_PUBLIC.
func (m *Method) Public() bool { return m.Flags&0x0001 != 0 }

// Static reports whether the method has ACC_STATIC.
func (m *Method) Static() bool { return m.Flags&0x0008 != 0 }

// File is one decoded class file.
type File struct {
	Name       string // internal name, e.g. com/example/Foo
	Super      string
	Interfaces []string
	Methods    []Method
	Major      uint16
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) u1() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.pos)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated at offset %d", r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.bytes(n)
	return err
}

// constant pool entry; only the fields call-graph extraction needs.
type cpEntry struct {
	tag  uint8
	utf8 string
	ref1 uint16 // Class.name / Methodref.class / NameAndType.name
	ref2 uint16 // Methodref.name_and_type / NameAndType.descriptor
}

type pool []cpEntry

func (p pool) utf8(i uint16) string {
	if int(i) < len(p) && p[i].tag == tagUtf8 {
		return p[i].utf8
	}
	return ""
}

func (p pool) className(i uint16) string {
	if int(i) < len(p) && p[i].tag == tagClass {
		return p.utf8(p[i].ref1)
	}
	return ""
}

// methodRef resolves a Methodref or InterfaceMethodref to (owner, name,
// descriptor).
func (p pool) methodRef(i uint16) (string, string, string) {
	if int(i) >= len(p) {
		return "", "", ""
	}
	e := p[i]
	if e.tag != tagMethodref && e.tag != tagInterfaceMethodref {
		return "", "", ""
	}
	owner := p.className(e.ref1)
	if int(e.ref2) >= len(p) || p[e.ref2].tag != tagNameAndType {
		return owner, "", ""
	}
	nt := p[e.ref2]
	return owner, p.utf8(nt.ref1), p.utf8(nt.ref2)
}

// nameAndTypeName returns the method name an invokedynamic call site binds.
func (p pool) nameAndTypeName(i uint16) string {
	if int(i) < len(p) && (p[i].tag == tagDynamic || p[i].tag == tagInvokeDynamic) {
		if int(p[i].ref2) < len(p) && p[p[i].ref2].tag == tagNameAndType {
			return p.utf8(p[p[i].ref2].ref1)
		}
	}
	return ""
}

// Parse decodes a single class file.
func Parse(data []byte) (*File, error) {
	r := &reader{data: data}

	m, err := r.u4()
	if err != nil {
		return nil, err
	}
	if m != magic {
		return nil, fmt.Errorf("not a class file: magic %#x", m)
	}
	if err := r.skip(2); err != nil { // minor
		return nil, err
	}
	major, err := r.u2()
	if err != nil {
		return nil, err
	}

	cp, err := readPool(r)
	if err != nil {
		return nil, fmt.Errorf("constant pool: %w", err)
	}

	if err := r.skip(2); err != nil { // access_flags
		return nil, err
	}
	thisClass, err := r.u2()
	if err != nil {
		return nil, err
	}
	superClass, err := r.u2()
	if err != nil {
		return nil, err
	}

	f := &File{
		Name:  cp.className(thisClass),
		Super: cp.className(superClass),
		Major: major,
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for range int(ifaceCount) {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		f.Interfaces = append(f.Interfaces, cp.className(idx))
	}

	// Fields: skip bodies, attributes and all.
	fieldCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for range int(fieldCount) {
		if err := r.skip(6); err != nil { // access, name, descriptor
			return nil, err
		}
		if err := skipAttributes(r); err != nil {
			return nil, err
		}
	}

	methodCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for range int(methodCount) {
		method, err := readMethod(r, cp)
		if err != nil {
			return nil, fmt.Errorf("method %d of %s: %w", len(f.Methods), f.Name, err)
		}
		f.Methods = append(f.Methods, method)
	}

	// Trailing class attributes are irrelevant here.
	return f, nil
}

func readPool(r *reader) (pool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	cp := make(pool, count)
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		cp[i].tag = tag
		switch tag {
		case tagUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			cp[i].utf8 = string(b)
		case tagInteger, tagFloat:
			if err := r.skip(4); err != nil {
				return nil, err
			}
		case tagLong, tagDouble:
			if err := r.skip(8); err != nil {
				return nil, err
			}
			i++ // 8-byte constants occupy two pool slots
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			cp[i].ref1 = v
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			v1, err := r.u2()
			if err != nil {
				return nil, err
			}
			v2, err := r.u2()
			if err != nil {
				return nil, err
			}
			cp[i].ref1, cp[i].ref2 = v1, v2
		case tagMethodHandle:
			if err := r.skip(3); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at entry %d", tag, i)
		}
	}
	return cp, nil
}

func skipAttributes(r *reader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for range int(count) {
		if err := r.skip(2); err != nil { // name index
			return err
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if err := r.skip(int(length)); err != nil {
			return err
		}
	}
	return nil
}

func readMethod(r *reader, cp pool) (Method, error) {
	flags, err := r.u2()
	if err != nil {
		return Method{}, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return Method{}, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return Method{}, err
	}
	m := Method{
		Name:       cp.utf8(nameIdx),
		Descriptor: cp.utf8(descIdx),
		Flags:      flags,
	}

	attrCount, err := r.u2()
	if err != nil {
		return Method{}, err
	}
	for range int(attrCount) {
		attrName, err := r.u2()
		if err != nil {
			return Method{}, err
		}
		length, err := r.u4()
		if err != nil {
			return Method{}, err
		}
		if cp.utf8(attrName) != "Code" {
			if err := r.skip(int(length)); err != nil {
				return Method{}, err
			}
			continue
		}
		body, err := r.bytes(int(length))
		if err != nil {
			return Method{}, err
		}
		invokes, err := scanCode(body, cp)
		if err != nil {
			return Method{}, err
		}
		m.Invokes = invokes
		m.HasCode = true
	}
	return m, nil
}

// scanCode walks the bytecode of a Code attribute and collects every invoke
// instruction with its resolved target.
func scanCode(attr []byte, cp pool) ([]Invoke, error) {
	r := &reader{data: attr}
	if err := r.skip(4); err != nil { // max_stack, max_locals
		return nil, err
	}
	codeLen, err := r.u4()
	if err != nil {
		return nil, err
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return nil, err
	}
	// Exception table and Code sub-attributes follow; not needed.

	var invokes []Invoke
	pc := 0
	for pc < len(code) {
		op := code[pc]
		switch op {
		case 0xb6, 0xb7, 0xb8, 0xb9: // invokevirtual/special/static/interface
			if pc+3 > len(code) {
				return nil, fmt.Errorf("truncated invoke at pc %d", pc)
			}
			idx := binary.BigEndian.Uint16(code[pc+1:])
			owner, name, desc := cp.methodRef(idx)
			invokes = append(invokes, Invoke{
				Kind: invokeKind(op), Owner: owner, Name: name, Descriptor: desc, PC: pc,
			})
		case 0xba: // invokedynamic
			if pc+5 > len(code) {
				return nil, fmt.Errorf("truncated invokedynamic at pc %d", pc)
			}
			idx := binary.BigEndian.Uint16(code[pc+1:])
			invokes = append(invokes, Invoke{
				Kind: KindDynamic, Name: cp.nameAndTypeName(idx), PC: pc,
			})
		}
		n, err := instrLen(code, pc)
		if err != nil {
			return nil, err
		}
		pc += n
	}
	return invokes, nil
}

func invokeKind(op byte) Kind {
	switch op {
	case 0xb6:
		return KindVirtual
	case 0xb7:
		return KindSpecial
	case 0xb8:
		return KindStatic
	case 0xb9:
		return KindInterface
	}
	return KindDynamic
}

// ExternalName converts an internal class name to source form:
// java/util/List -> java.util.List.
func ExternalName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// SimpleName returns the class name without its package.
func SimpleName(internal string) string {
	if i := strings.LastIndexByte(internal, '/'); i >= 0 {
		return internal[i+1:]
	}
	return internal
}
