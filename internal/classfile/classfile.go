// Package classfile reads and writes JVM class files, locates methods, and
// exposes their Code attributes for in-place editing.
package classfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

const magic = 0xCAFEBABE

type ClassFile struct {
	Minor, Major uint16
	Pool         *ConstPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
}

// Member is a field_info or method_info.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

type Attribute struct {
	NameIndex uint16
	Info      []byte
}

// Open reads and parses the class file at path.
func Open(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class: %w", err)
	}
	cf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf, nil
}

// Parse decodes a class file. The result does not alias data.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}
	if m := r.u32(); r.err == nil && m != magic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrBadMagic, m)
	}
	cf := &ClassFile{Minor: r.u16(), Major: r.u16()}
	cf.Pool = parseConstPool(r)
	cf.AccessFlags = r.u16()
	cf.ThisClass = r.u16()
	cf.SuperClass = r.u16()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u16())
	}
	cf.Fields = parseMembers(r)
	cf.Methods = parseMembers(r)
	cf.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(data)-r.off)
	}
	return cf, nil
}

func parseMembers(r *reader) []*Member {
	n := int(r.u16())
	out := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, &Member{
			AccessFlags:     r.u16(),
			NameIndex:       r.u16(),
			DescriptorIndex: r.u16(),
			Attributes:      r.attributes(),
		})
	}
	return out
}

// Bytes serialises the class file.
func (cf *ClassFile) Bytes() []byte {
	b := binary.BigEndian.AppendUint32(nil, magic)
	b = binary.BigEndian.AppendUint16(b, cf.Minor)
	b = binary.BigEndian.AppendUint16(b, cf.Major)
	b = cf.Pool.appendTo(b)
	b = binary.BigEndian.AppendUint16(b, cf.AccessFlags)
	b = binary.BigEndian.AppendUint16(b, cf.ThisClass)
	b = binary.BigEndian.AppendUint16(b, cf.SuperClass)
	b = binary.BigEndian.AppendUint16(b, uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		b = binary.BigEndian.AppendUint16(b, i)
	}
	for _, members := range [][]*Member{cf.Fields, cf.Methods} {
		b = binary.BigEndian.AppendUint16(b, uint16(len(members)))
		for _, m := range members {
			b = binary.BigEndian.AppendUint16(b, m.AccessFlags)
			b = binary.BigEndian.AppendUint16(b, m.NameIndex)
			b = binary.BigEndian.AppendUint16(b, m.DescriptorIndex)
			b = appendAttributes(b, m.Attributes)
		}
	}
	return appendAttributes(b, cf.Attributes)
}

// Name returns the dotted binary name of the class.
func (cf *ClassFile) Name() (string, error) {
	n, err := cf.Pool.ClassName(cf.ThisClass)
	if err != nil {
		return "", err
	}
	return DottedName(n), nil
}

// MemberName returns a member's name and descriptor.
func (cf *ClassFile) MemberName(m *Member) (name, desc string, err error) {
	if name, err = cf.Pool.Utf8(m.NameIndex); err != nil {
		return "", "", err
	}
	if desc, err = cf.Pool.Utf8(m.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// Method finds a method by name and descriptor. An empty desc matches the
// first method with that name.
func (cf *ClassFile) Method(name, desc string) (*Member, error) {
	for _, m := range cf.Methods {
		n, d, err := cf.MemberName(m)
		if err != nil {
			return nil, err
		}
		if n == name && (desc == "" || d == desc) {
			return m, nil
		}
	}
	if desc == "" {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	return nil, fmt.Errorf("%w: %s%s", ErrMethodNotFound, name, desc)
}

func (cf *ClassFile) codeAttr(m *Member) (int, error) {
	for i, a := range m.Attributes {
		if n, err := cf.Pool.Utf8(a.NameIndex); err == nil && n == "Code" {
			return i, nil
		}
	}
	return -1, ErrNoCode
}

// Code decodes the method's Code attribute.
func (cf *ClassFile) Code(m *Member) (*Code, error) {
	i, err := cf.codeAttr(m)
	if err != nil {
		return nil, err
	}
	return ParseCode(m.Attributes[i].Info)
}

// SetCode replaces the method's Code attribute with c.
func (cf *ClassFile) SetCode(m *Member, c *Code) error {
	i, err := cf.codeAttr(m)
	if err != nil {
		return err
	}
	m.Attributes[i].Info = c.Encode()
	return nil
}

// InternalName converts a dotted class name to its slash-separated form.
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// DottedName converts an internal class name to its dotted form.
func DottedName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// New returns an empty class with the given dotted or internal names.
func New(name, super string) (*ClassFile, error) {
	cf := &ClassFile{Major: 52, Pool: NewConstPool(), AccessFlags: 0x0021}
	var err error
	if cf.ThisClass, err = cf.Pool.AddClass(name); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = cf.Pool.AddClass(super); err != nil {
		return nil, err
	}
	return cf, nil
}

// AddMethod appends a method. A nil code adds an abstract or native method
// without a Code attribute.
func (cf *ClassFile) AddMethod(access uint16, name, desc string, code *Code) (*Member, error) {
	n, err := cf.Pool.AddUtf8(name)
	if err != nil {
		return nil, err
	}
	d, err := cf.Pool.AddUtf8(desc)
	if err != nil {
		return nil, err
	}
	m := &Member{AccessFlags: access, NameIndex: n, DescriptorIndex: d}
	if code != nil {
		attr, err := cf.Pool.AddUtf8("Code")
		if err != nil {
			return nil, err
		}
		m.Attributes = append(m.Attributes, Attribute{NameIndex: attr, Info: code.Encode()})
	}
	cf.Methods = append(cf.Methods, m)
	return m, nil
}
