package message

// GroupSpec describes the layout of one repeating group: its delimiter tag,
// which tags may appear inside an entry, and which member tags are
// themselves NumInGroup counters of nested groups.
type GroupSpec interface {
	// Delim returns the tag that must open every entry.
	Delim() Tag

	// IsMember reports whether tag may appear inside an entry.
	IsMember(tag Tag) bool

	// Nested returns the spec of a nested group whose counter is tag.
	Nested(tag Tag) (GroupSpec, bool)
}

// Dictionary is the optional data dictionary consulted by the codec.
// It supplies custom header/trailer classification, field names for
// export, and repeating-group layouts. All methods must be safe for
// concurrent use.
type Dictionary interface {
	IsHeaderField(tag Tag) bool
	IsTrailerField(tag Tag) bool

	// FieldName returns the symbolic name of a field.
	FieldName(tag Tag) (string, bool)

	// FieldTag is the inverse of FieldName.
	FieldTag(name string) (Tag, bool)

	// ValueName returns the description of an enumerated value.
	ValueName(tag Tag, value string) (string, bool)

	HeaderGroup(counter Tag) (GroupSpec, bool)
	TrailerGroup(counter Tag) (GroupSpec, bool)
	BodyGroup(msgType string, counter Tag) (GroupSpec, bool)
}

// StaticGroupSpec is a programmatic GroupSpec.
type StaticGroupSpec struct {
	delim   Tag
	members map[Tag]struct{}
	nested  map[Tag]GroupSpec
}

// NewGroupSpec creates a group spec. The delimiter is always a member.
func NewGroupSpec(delim Tag, members ...Tag) *StaticGroupSpec {
	s := &StaticGroupSpec{
		delim:   delim,
		members: make(map[Tag]struct{}, len(members)+1),
		nested:  make(map[Tag]GroupSpec),
	}
	s.members[delim] = struct{}{}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s
}

// WithNested registers a nested group under counter, adding counter to the
// member set. Returns s for chaining.
func (s *StaticGroupSpec) WithNested(counter Tag, spec GroupSpec) *StaticGroupSpec {
	s.members[counter] = struct{}{}
	s.nested[counter] = spec
	return s
}

// Delim implements GroupSpec.
func (s *StaticGroupSpec) Delim() Tag { return s.delim }

// IsMember implements GroupSpec.
func (s *StaticGroupSpec) IsMember(tag Tag) bool {
	_, ok := s.members[tag]
	return ok
}

// Nested implements GroupSpec.
func (s *StaticGroupSpec) Nested(tag Tag) (GroupSpec, bool) {
	g, ok := s.nested[tag]
	return g, ok
}
