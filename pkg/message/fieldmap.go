package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is a single tag=value pair. Values are kept verbatim; no semantic
// conversion happens at this layer.
type Field struct {
	Tag   Tag
	Value string
}

// String returns the wire form of the field without the terminator.
func (f Field) String() string {
	return strconv.Itoa(int(f.Tag)) + "=" + f.Value
}

// FieldMap is an ordered tag-to-field mapping that also owns repeating
// groups keyed by their NumInGroup counter tag. Fields serialize in
// insertion order, each counter field immediately followed by its group
// entries.
//
// The zero value is an empty map ready to use. FieldMap is not safe for
// concurrent use.
type FieldMap struct {
	values     map[Tag]string
	order      []Tag
	groups     map[Tag][]*Group
	groupOrder []Tag

	// RepeatedTags holds fields that appeared more than once in parsed text
	// outside any group. Only the first occurrence is kept in the map.
	RepeatedTags []Field
}

// NewFieldMap creates an empty field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{}
}

func (m *FieldMap) init() {
	if m.values == nil {
		m.values = make(map[Tag]string)
	}
	if m.groups == nil {
		m.groups = make(map[Tag][]*Group)
	}
}

// SetField stores value under tag, overwriting any previous value while
// keeping its original position.
func (m *FieldMap) SetField(tag Tag, value string) {
	m.init()
	if _, ok := m.values[tag]; !ok {
		m.order = append(m.order, tag)
	}
	m.values[tag] = value
}

// SetInt stores an integer value.
func (m *FieldMap) SetInt(tag Tag, value int) {
	m.SetField(tag, strconv.Itoa(value))
}

// SetFieldIfAbsent stores f only if its tag is not present yet.
// Returns false when the tag already exists.
func (m *FieldMap) SetFieldIfAbsent(f Field) bool {
	m.init()
	if _, ok := m.values[f.Tag]; ok {
		return false
	}
	m.values[f.Tag] = f.Value
	m.order = append(m.order, f.Tag)
	return true
}

// Get returns the value stored under tag.
func (m *FieldMap) Get(tag Tag) (string, bool) {
	v, ok := m.values[tag]
	return v, ok
}

// GetString returns the value stored under tag or ErrFieldNotFound.
func (m *FieldMap) GetString(tag Tag) (string, error) {
	v, ok := m.values[tag]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrFieldNotFound, tag)
	}
	return v, nil
}

// GetInt returns the value stored under tag as an integer.
func (m *FieldMap) GetInt(tag Tag) (int, error) {
	v, err := m.GetString(tag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: tag %d value %q", ErrFieldConvert, tag, v)
	}
	return n, nil
}

// GetBool returns the value stored under tag as a FIX boolean (Y/N).
func (m *FieldMap) GetBool(tag Tag) (bool, error) {
	v, err := m.GetString(tag)
	if err != nil {
		return false, err
	}
	switch v {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	}
	return false, fmt.Errorf("%w: tag %d value %q", ErrFieldConvert, tag, v)
}

// Has reports whether tag is present.
func (m *FieldMap) Has(tag Tag) bool {
	_, ok := m.values[tag]
	return ok
}

// Remove deletes tag and any groups it counts.
func (m *FieldMap) Remove(tag Tag) {
	if _, ok := m.values[tag]; !ok {
		return
	}
	delete(m.values, tag)
	for i, t := range m.order {
		if t == tag {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.dropGroups(tag)
}

// Len returns the number of fields, not counting group entries.
func (m *FieldMap) Len() int {
	return len(m.order)
}

// IsEmpty reports whether the map holds neither fields nor groups.
func (m *FieldMap) IsEmpty() bool {
	return len(m.order) == 0 && len(m.groupOrder) == 0
}

// Fields returns a copy of the fields in insertion order.
func (m *FieldMap) Fields() []Field {
	out := make([]Field, 0, len(m.order))
	for _, t := range m.order {
		out = append(out, Field{Tag: t, Value: m.values[t]})
	}
	return out
}

// orderedFields returns the fields in serialization order: those listed in
// pre first, then the rest in insertion order.
func (m *FieldMap) orderedFields(pre []Tag) []Field {
	out := make([]Field, 0, len(m.order))
	for _, t := range pre {
		if v, ok := m.values[t]; ok {
			out = append(out, Field{Tag: t, Value: v})
		}
	}
	for _, t := range m.order {
		if !contains(pre, t) {
			out = append(out, Field{Tag: t, Value: m.values[t]})
		}
	}
	return out
}

// Clear removes every field, group and repeated tag.
func (m *FieldMap) Clear() {
	m.values = nil
	m.order = nil
	m.groups = nil
	m.groupOrder = nil
	m.RepeatedTags = nil
}

// AddGroup appends an entry to the group counted by g.Counter() and sets
// the counter field to the new entry count.
func (m *FieldMap) AddGroup(g *Group) {
	m.addGroup(g, true)
}

func (m *FieldMap) addGroup(g *Group, setCount bool) {
	m.init()
	if _, ok := m.groups[g.counter]; !ok {
		m.groupOrder = append(m.groupOrder, g.counter)
	}
	m.groups[g.counter] = append(m.groups[g.counter], g)
	if setCount {
		m.SetInt(g.counter, len(m.groups[g.counter]))
	}
}

// Group returns entry num (1-based) of the group counted by counter.
func (m *FieldMap) Group(num int, counter Tag) (*Group, error) {
	entries := m.groups[counter]
	if num < 1 || num > len(entries) {
		return nil, fmt.Errorf("%w: counter %d entry %d", ErrGroupNotFound, counter, num)
	}
	return entries[num-1], nil
}

// GroupCount returns the number of entries of the group counted by counter.
func (m *FieldMap) GroupCount(counter Tag) int {
	return len(m.groups[counter])
}

// GroupTags returns the counter tags of all groups in first-added order.
func (m *FieldMap) GroupTags() []Tag {
	out := make([]Tag, len(m.groupOrder))
	copy(out, m.groupOrder)
	return out
}

// ReplaceGroup swaps entry num (1-based) for g.
func (m *FieldMap) ReplaceGroup(num int, g *Group) error {
	entries := m.groups[g.counter]
	if num < 1 || num > len(entries) {
		return fmt.Errorf("%w: counter %d entry %d", ErrGroupNotFound, g.counter, num)
	}
	entries[num-1] = g
	return nil
}

// RemoveGroup deletes entry num (1-based) and updates the counter field.
// The counter field is removed with the last entry.
func (m *FieldMap) RemoveGroup(num int, counter Tag) error {
	entries := m.groups[counter]
	if num < 1 || num > len(entries) {
		return fmt.Errorf("%w: counter %d entry %d", ErrGroupNotFound, counter, num)
	}
	entries = append(entries[:num-1], entries[num:]...)
	if len(entries) == 0 {
		m.Remove(counter)
		return nil
	}
	m.groups[counter] = entries
	m.SetInt(counter, len(entries))
	return nil
}

func (m *FieldMap) dropGroups(counter Tag) {
	if _, ok := m.groups[counter]; !ok {
		return
	}
	delete(m.groups, counter)
	for i, t := range m.groupOrder {
		if t == counter {
			m.groupOrder = append(m.groupOrder[:i], m.groupOrder[i+1:]...)
			break
		}
	}
}

// CopyFrom replaces the contents of m with a deep copy of src.
func (m *FieldMap) CopyFrom(src *FieldMap) {
	m.Clear()
	for _, t := range src.order {
		m.SetField(t, src.values[t])
	}
	for _, counter := range src.groupOrder {
		for _, g := range src.groups[counter] {
			m.addGroup(g.Clone(), false)
		}
	}
	m.RepeatedTags = append([]Field(nil), src.RepeatedTags...)
}

// writeTo appends the wire form of m to b. Fields listed in pre are written
// first (when present), then the rest in insertion order, then RepeatedTags.
// Tags in skip are omitted. Group entries follow their counter field.
func (m *FieldMap) writeTo(b *strings.Builder, pre []Tag, skip ...Tag) {
	for _, t := range pre {
		if v, ok := m.values[t]; ok && !contains(skip, t) {
			m.writeField(b, t, v)
		}
	}
	for _, t := range m.order {
		if contains(pre, t) || contains(skip, t) {
			continue
		}
		m.writeField(b, t, m.values[t])
	}
	for _, f := range m.RepeatedTags {
		if contains(skip, f.Tag) {
			continue
		}
		b.WriteString(f.String())
		b.WriteByte(SOH)
	}
}

func (m *FieldMap) writeField(b *strings.Builder, t Tag, v string) {
	b.WriteString(strconv.Itoa(int(t)))
	b.WriteByte('=')
	b.WriteString(v)
	b.WriteByte(SOH)
	for _, g := range m.groups[t] {
		g.writeTo(b)
	}
}

func contains(tags []Tag, t Tag) bool {
	for _, x := range tags {
		if x == t {
			return true
		}
	}
	return false
}

// String returns the wire form of the map's fields and groups.
func (m *FieldMap) String() string {
	var b strings.Builder
	m.writeTo(&b, nil)
	return b.String()
}

// Group is one entry of a repeating group. Its delimiter field serializes
// first; remaining fields follow in insertion order.
type Group struct {
	FieldMap
	counter Tag
	delim   Tag
}

// NewGroup creates an empty entry for the group counted by counter whose
// entries open with delim.
func NewGroup(counter, delim Tag) *Group {
	return &Group{counter: counter, delim: delim}
}

// Counter returns the NumInGroup tag that counts this group.
func (g *Group) Counter() Tag { return g.counter }

// Delim returns the delimiter tag.
func (g *Group) Delim() Tag { return g.delim }

// Clone returns a deep copy of the entry.
func (g *Group) Clone() *Group {
	c := NewGroup(g.counter, g.delim)
	c.CopyFrom(&g.FieldMap)
	return c
}

func (g *Group) writeTo(b *strings.Builder) {
	g.FieldMap.writeTo(b, []Tag{g.delim})
}
