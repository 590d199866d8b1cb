package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Field",
	TagMethodref:          "Method",
	TagInterfaceMethodref: "InterfaceMethod",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// payloadLen returns the fixed payload size of t, or -1 for Utf8.
func (t Tag) payloadLen() int {
	switch t {
	case TagUtf8:
		return -1
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		return 2
	case TagMethodHandle:
		return 3
	case TagInteger, TagFloat, TagFieldref, TagMethodref, TagInterfaceMethodref,
		TagNameAndType, TagDynamic, TagInvokeDynamic:
		return 4
	case TagLong, TagDouble:
		return 8
	}
	return 0
}

// Constant is one pool entry. Data holds the payload exactly as read, so an
// untouched pool serialises byte for byte. The unusable slot after a Long or
// Double has Tag 0.
type Constant struct {
	Tag  Tag
	Data []byte
}

func (c Constant) ref(i int) uint16 {
	if len(c.Data) < 2*i+2 {
		return 0
	}
	return binary.BigEndian.Uint16(c.Data[2*i:])
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Index      uint16
	Tag        Tag
	Class      string // internal form, e.g. java/lang/Object
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	return fmt.Sprintf("%s %s.%s:%s", m.Tag, m.Class, m.Name, m.Descriptor)
}

// ConstPool is a class file's constant pool. Index 0 is never valid.
type ConstPool struct {
	entries []Constant
}

// NewConstPool returns an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{entries: make([]Constant, 1)}
}

func parseConstPool(r *reader) *ConstPool {
	count := int(r.u16())
	p := &ConstPool{entries: make([]Constant, count)}
	for i := 1; i < count && r.err == nil; i++ {
		tag := Tag(r.u8())
		n := tag.payloadLen()
		switch {
		case n < 0:
			n = int(r.u16())
		case n == 0:
			if r.err == nil {
				r.err = fmt.Errorf("%w: unknown constant tag %d at index %d", ErrBadConstant, tag, i)
			}
			return p
		}
		p.entries[i] = Constant{Tag: tag, Data: r.bytes(n)}
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return p
}

func (p *ConstPool) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			continue
		}
		b = append(b, byte(c.Tag))
		if c.Tag == TagUtf8 {
			b = binary.BigEndian.AppendUint16(b, uint16(len(c.Data)))
		}
		b = append(b, c.Data...)
	}
	return b
}

// Count returns constant_pool_count, one more than the highest index.
func (p *ConstPool) Count() int {
	return len(p.entries)
}

// Entry returns the constant at index.
func (p *ConstPool) Entry(index uint16) (Constant, bool) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index].Tag == 0 {
		return Constant{}, false
	}
	return p.entries[index], true
}

func (p *ConstPool) expect(index uint16, tags ...Tag) (Constant, error) {
	c, ok := p.Entry(index)
	if !ok {
		return Constant{}, fmt.Errorf("%w: index %d", ErrBadConstant, index)
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return Constant{}, fmt.Errorf("%w: index %d is %s, want %v", ErrBadConstant, index, c.Tag, tags)
}

// Utf8 returns the string at a Utf8 entry.
func (p *ConstPool) Utf8(index uint16) (string, error) {
	c, err := p.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return decodeMUTF8(c.Data), nil
}

// ClassName returns the internal name of a Class entry.
func (p *ConstPool) ClassName(index uint16) (string, error) {
	c, err := p.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.ref(0))
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *ConstPool) NameAndType(index uint16) (name, desc string, err error) {
	c, err := p.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.ref(0)); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8(c.ref(1)); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// Member resolves a Fieldref, Methodref or InterfaceMethodref.
func (p *ConstPool) Member(index uint16) (MemberRef, error) {
	c, err := p.expect(index, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	class, err := p.ClassName(c.ref(0))
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.ref(1))
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Index: index, Tag: c.Tag, Class: class, Name: name, Descriptor: desc}, nil
}

// Members resolves every field and method reference in the pool. Entries that
// do not resolve are skipped.
func (p *ConstPool) Members() []MemberRef {
	var out []MemberRef
	for i := 1; i < len(p.entries); i++ {
		switch p.entries[i].Tag {
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if m, err := p.Member(uint16(i)); err == nil {
				out = append(out, m)
			}
		}
	}
	return out
}

func (p *ConstPool) add(c Constant) (uint16, error) {
	slots := 1
	if c.Tag == TagLong || c.Tag == TagDouble {
		slots = 2
	}
	if len(p.entries)+slots > math.MaxUint16 {
		return 0, fmt.Errorf("constant pool is full (%d entries)", len(p.entries))
	}
	index := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	return index, nil
}

func (p *ConstPool) find(tag Tag, match func(Constant) bool) (uint16, bool) {
	for i := 1; i < len(p.entries); i++ {
		if c := p.entries[i]; c.Tag == tag && match(c) {
			return uint16(i), true
		}
	}
	return 0, false
}

// AddUtf8 returns the index of a Utf8 entry for s, adding one if needed.
func (p *ConstPool) AddUtf8(s string) (uint16, error) {
	enc := encodeMUTF8(s)
	if len(enc) > math.MaxUint16 {
		return 0, fmt.Errorf("string of %d bytes is too long for the constant pool", len(enc))
	}
	if i, ok := p.find(TagUtf8, func(c Constant) bool { return string(c.Data) == string(enc) }); ok {
		return i, nil
	}
	return p.add(Constant{Tag: TagUtf8, Data: enc})
}

// AddClass returns the index of a Class entry for an internal or dotted name.
func (p *ConstPool) AddClass(name string) (uint16, error) {
	nameIdx, err := p.AddUtf8(InternalName(name))
	if err != nil {
		return 0, err
	}
	return p.addRefs(TagClass, nameIdx)
}

// AddNameAndType returns the index of a NameAndType entry.
func (p *ConstPool) AddNameAndType(name, desc string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.addRefs(TagNameAndType, n, d)
}

// AddMethodref returns the index of a Methodref entry, reusing an existing
// identical entry.
func (p *ConstPool) AddMethodref(class, name, desc string) (uint16, error) {
	c, err := p.AddClass(class)
	if err != nil {
		return 0, err
	}
	nt, err := p.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.addRefs(TagMethodref, c, nt)
}

func (p *ConstPool) addRefs(tag Tag, refs ...uint16) (uint16, error) {
	data := make([]byte, 0, 2*len(refs))
	for _, r := range refs {
		data = binary.BigEndian.AppendUint16(data, r)
	}
	if i, ok := p.find(tag, func(c Constant) bool { return string(c.Data) == string(data) }); ok {
		return i, nil
	}
	return p.add(Constant{Tag: tag, Data: data})
}

// Describe renders the entry at index for listings.
func (p *ConstPool) Describe(index uint16) string {
	c, ok := p.Entry(index)
	if !ok {
		return fmt.Sprintf("invalid #%d", index)
	}
	switch c.Tag {
	case TagUtf8:
		return fmt.Sprintf("Utf8 %q", decodeMUTF8(c.Data))
	case TagClass:
		name, _ := p.ClassName(index)
		return "Class " + name
	case TagString:
		s, _ := p.Utf8(c.ref(0))
		return fmt.Sprintf("String %q", s)
	case TagInteger:
		return fmt.Sprintf("int %d", int32(binary.BigEndian.Uint32(c.Data)))
	case TagFloat:
		return fmt.Sprintf("float %g", math.Float32frombits(binary.BigEndian.Uint32(c.Data)))
	case TagLong:
		return fmt.Sprintf("long %d", int64(binary.BigEndian.Uint64(c.Data)))
	case TagDouble:
		return fmt.Sprintf("double %g", math.Float64frombits(binary.BigEndian.Uint64(c.Data)))
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		m, err := p.Member(index)
		if err != nil {
			return fmt.Sprintf("%s #%d", c.Tag, index)
		}
		return m.String()
	case TagNameAndType:
		name, desc, _ := p.NameAndType(index)
		return fmt.Sprintf("NameAndType %s:%s", name, desc)
	default:
		return fmt.Sprintf("%s #%d", c.Tag, index)
	}
}
