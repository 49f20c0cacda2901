// Package dictionary loads a data dictionary from YAML: field names,
// enumerated value descriptions, custom header/trailer fields and
// repeating-group layouts per message type.
//
// It carries no value validation; it exists so the codec can parse
// repeating groups and exports can render names.
//
//	fields:
//	  - {tag: 55, name: Symbol}
//	  - tag: 269
//	    name: MDEntryType
//	    values: {"0": BID, "1": OFFER}
//	header: [5000]
//	messages:
//	  W:
//	    groups:
//	      - counter: 268
//	        delim: 269
//	        members: [269, 270, 271]
package dictionary

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/backkem/fix/pkg/message"
	"gopkg.in/yaml.v3"
)

// Dictionary errors.
var (
	ErrRead    = errors.New("dictionary: read failed")
	ErrInvalid = errors.New("dictionary: invalid document")
)

type fileDoc struct {
	Fields        []fieldDoc            `yaml:"fields"`
	Header        []int                 `yaml:"header"`
	Trailer       []int                 `yaml:"trailer"`
	HeaderGroups  []groupDoc            `yaml:"header_groups"`
	TrailerGroups []groupDoc            `yaml:"trailer_groups"`
	Messages      map[string]messageDoc `yaml:"messages"`
}

type fieldDoc struct {
	Tag    int               `yaml:"tag"`
	Name   string            `yaml:"name"`
	Values map[string]string `yaml:"values"`
}

type messageDoc struct {
	Name   string     `yaml:"name"`
	Groups []groupDoc `yaml:"groups"`
}

type groupDoc struct {
	Counter int        `yaml:"counter"`
	Delim   int        `yaml:"delim"`
	Members []int      `yaml:"members"`
	Groups  []groupDoc `yaml:"groups"`
}

// Dictionary implements message.Dictionary. It is immutable after
// construction and safe for concurrent use.
type Dictionary struct {
	names         map[message.Tag]string
	tags          map[string]message.Tag
	values        map[message.Tag]map[string]string
	header        map[message.Tag]struct{}
	trailer       map[message.Tag]struct{}
	headerGroups  map[message.Tag]message.GroupSpec
	trailerGroups map[message.Tag]message.GroupSpec
	bodyGroups    map[string]map[message.Tag]message.GroupSpec
	msgNames      map[string]string
}

// Load reads a dictionary file.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse builds a dictionary from a YAML document.
func Parse(data []byte) (*Dictionary, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	d := &Dictionary{
		names:         make(map[message.Tag]string),
		tags:          make(map[string]message.Tag),
		values:        make(map[message.Tag]map[string]string),
		header:        tagSet(doc.Header),
		trailer:       tagSet(doc.Trailer),
		headerGroups:  make(map[message.Tag]message.GroupSpec),
		trailerGroups: make(map[message.Tag]message.GroupSpec),
		bodyGroups:    make(map[string]map[message.Tag]message.GroupSpec),
		msgNames:      make(map[string]string),
	}

	for _, f := range doc.Fields {
		if f.Tag <= 0 || f.Name == "" {
			return nil, fmt.Errorf("%w: field needs a positive tag and a name (tag %d)", ErrInvalid, f.Tag)
		}
		tag := message.Tag(f.Tag)
		if _, dup := d.names[tag]; dup {
			return nil, fmt.Errorf("%w: field %d defined twice", ErrInvalid, f.Tag)
		}
		d.names[tag] = f.Name
		d.tags[f.Name] = tag
		if len(f.Values) > 0 {
			d.values[tag] = f.Values
		}
	}

	if err := addGroups(d.headerGroups, doc.HeaderGroups); err != nil {
		return nil, err
	}
	if err := addGroups(d.trailerGroups, doc.TrailerGroups); err != nil {
		return nil, err
	}
	for msgType, m := range doc.Messages {
		groups := make(map[message.Tag]message.GroupSpec)
		if err := addGroups(groups, m.Groups); err != nil {
			return nil, fmt.Errorf("message %s: %w", msgType, err)
		}
		d.bodyGroups[msgType] = groups
		if m.Name != "" {
			d.msgNames[msgType] = m.Name
		}
	}
	return d, nil
}

func tagSet(tags []int) map[message.Tag]struct{} {
	s := make(map[message.Tag]struct{}, len(tags))
	for _, t := range tags {
		s[message.Tag(t)] = struct{}{}
	}
	return s
}

func addGroups(dst map[message.Tag]message.GroupSpec, docs []groupDoc) error {
	for _, g := range docs {
		spec, err := buildGroup(g)
		if err != nil {
			return err
		}
		dst[message.Tag(g.Counter)] = spec
	}
	return nil
}

func buildGroup(g groupDoc) (*message.StaticGroupSpec, error) {
	if g.Counter <= 0 || g.Delim <= 0 {
		return nil, fmt.Errorf("%w: group needs counter and delim (counter %d)", ErrInvalid, g.Counter)
	}
	members := make([]message.Tag, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, message.Tag(m))
	}
	spec := message.NewGroupSpec(message.Tag(g.Delim), members...)
	for _, n := range g.Groups {
		nested, err := buildGroup(n)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", g.Counter, err)
		}
		spec.WithNested(message.Tag(n.Counter), nested)
	}
	return spec, nil
}

// IsHeaderField implements message.Dictionary.
func (d *Dictionary) IsHeaderField(tag message.Tag) bool {
	_, ok := d.header[tag]
	return ok
}

// IsTrailerField implements message.Dictionary.
func (d *Dictionary) IsTrailerField(tag message.Tag) bool {
	_, ok := d.trailer[tag]
	return ok
}

// FieldName implements message.Dictionary.
func (d *Dictionary) FieldName(tag message.Tag) (string, bool) {
	n, ok := d.names[tag]
	return n, ok
}

// FieldTag implements message.Dictionary. Numeric names resolve to
// themselves.
func (d *Dictionary) FieldTag(name string) (message.Tag, bool) {
	if t, ok := d.tags[name]; ok {
		return t, true
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		return message.Tag(n), true
	}
	return 0, false
}

// ValueName implements message.Dictionary.
func (d *Dictionary) ValueName(tag message.Tag, value string) (string, bool) {
	v, ok := d.values[tag][value]
	return v, ok
}

// HeaderGroup implements message.Dictionary.
func (d *Dictionary) HeaderGroup(counter message.Tag) (message.GroupSpec, bool) {
	g, ok := d.headerGroups[counter]
	return g, ok
}

// TrailerGroup implements message.Dictionary.
func (d *Dictionary) TrailerGroup(counter message.Tag) (message.GroupSpec, bool) {
	g, ok := d.trailerGroups[counter]
	return g, ok
}

// BodyGroup implements message.Dictionary.
func (d *Dictionary) BodyGroup(msgType string, counter message.Tag) (message.GroupSpec, bool) {
	g, ok := d.bodyGroups[msgType][counter]
	return g, ok
}

// MessageName returns the name declared for msgType.
func (d *Dictionary) MessageName(msgType string) (string, bool) {
	n, ok := d.msgNames[msgType]
	return n, ok
}
