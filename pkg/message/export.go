package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToXML renders m as an ad-hoc XML document (not FIXML). Field names come
// from dict when it knows them; dict may be nil.
func (m *Message) ToXML(dict Dictionary) string {
	var b strings.Builder
	b.WriteString("<message><header>")
	fieldMapToXML(&b, dict, &m.Header.FieldMap, headerOrder)
	b.WriteString("</header><body>")
	fieldMapToXML(&b, dict, &m.Body, nil)
	b.WriteString("</body><trailer>")
	fieldMapToXML(&b, dict, &m.Trailer.FieldMap, trailerOrder)
	b.WriteString("</trailer></message>")
	return b.String()
}

func fieldMapToXML(b *strings.Builder, dict Dictionary, fm *FieldMap, pre []Tag) {
	for _, f := range fm.orderedFields(pre) {
		b.WriteString("<field ")
		if dict != nil {
			if name, ok := dict.FieldName(f.Tag); ok {
				b.WriteString(`name="` + name + `" `)
			}
		}
		b.WriteString(`number="` + f.Tag.String() + `">`)
		b.WriteString("<![CDATA[" + strings.ReplaceAll(f.Value, "]]>", "]]]]><![CDATA[>") + "]]>")
		b.WriteString("</field>")
	}
	for _, counter := range fm.groupOrder {
		for _, g := range fm.groups[counter] {
			b.WriteString("<group>")
			fieldMapToXML(b, dict, &g.FieldMap, []Tag{g.delim})
			b.WriteString("</group>")
		}
	}
}

// ToJSON renders m in FIX JSON encoding: one object per section, field
// names from dict (falling back to the tag number), groups as arrays keyed
// by their counter's name. CheckSum is omitted. With humanReadable, values
// are replaced by their enumeration description when dict has one.
func (m *Message) ToJSON(dict Dictionary, humanReadable bool) string {
	var b strings.Builder
	b.WriteString(`{"Header":{`)
	fieldMapToJSON(&b, dict, &m.Header.FieldMap, headerOrder, humanReadable)
	b.WriteString(`},"Body":{`)
	fieldMapToJSON(&b, dict, &m.Body, nil, humanReadable)
	b.WriteString(`},"Trailer":{`)
	fieldMapToJSON(&b, dict, &m.Trailer.FieldMap, trailerOrder, humanReadable)
	b.WriteString("}}")
	return b.String()
}

func jsonName(dict Dictionary, tag Tag) string {
	if dict != nil {
		if name, ok := dict.FieldName(tag); ok {
			return name
		}
	}
	return tag.String()
}

func writeJSONString(b *strings.Builder, s string) {
	out, _ := json.Marshal(s)
	b.Write(out)
}

func fieldMapToJSON(b *strings.Builder, dict Dictionary, fm *FieldMap, pre []Tag, humanReadable bool) {
	first := true
	sep := func() {
		if !first {
			b.WriteByte(',')
		}
		first = false
	}

	for _, f := range fm.orderedFields(pre) {
		if f.Tag == TagCheckSum || fm.GroupCount(f.Tag) > 0 {
			continue
		}
		sep()
		writeJSONString(b, jsonName(dict, f.Tag))
		b.WriteByte(':')
		value := f.Value
		if humanReadable && dict != nil {
			if desc, ok := dict.ValueName(f.Tag, f.Value); ok {
				value = desc
			}
		}
		writeJSONString(b, value)
	}

	for _, counter := range fm.groupOrder {
		sep()
		writeJSONString(b, jsonName(dict, counter))
		b.WriteString(":[")
		for i, g := range fm.groups[counter] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('{')
			fieldMapToJSON(b, dict, &g.FieldMap, []Tag{g.delim}, humanReadable)
			b.WriteByte('}')
		}
		b.WriteByte(']')
	}
}

// FromJSON clears m and fills it from a FIX JSON encoded document. Field
// names are resolved through dict; numeric keys are taken as tag numbers.
// Groups are only rebuilt when dict describes them. BodyLength and CheckSum
// are recomputed.
func (m *Message) FromJSON(data []byte, dict Dictionary) error {
	m.Clear()

	var doc struct {
		Header  json.RawMessage
		Body    json.RawMessage
		Trailer json.RawMessage
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrJSON, err)
	}
	if doc.Header == nil {
		return fmt.Errorf("%w: Header section missing", ErrJSON)
	}

	headerGroups := func(t Tag) (GroupSpec, bool) {
		if dict == nil {
			return nil, false
		}
		return dict.HeaderGroup(t)
	}
	if err := decodeJSONSection(doc.Header, dict, &m.Header.FieldMap, headerGroups); err != nil {
		return err
	}

	msgType := m.MsgType()
	bodyGroups := func(t Tag) (GroupSpec, bool) {
		if dict == nil {
			return nil, false
		}
		return dict.BodyGroup(msgType, t)
	}
	if doc.Body != nil {
		if err := decodeJSONSection(doc.Body, dict, &m.Body, bodyGroups); err != nil {
			return err
		}
	}

	trailerGroups := func(t Tag) (GroupSpec, bool) {
		if dict == nil {
			return nil, false
		}
		return dict.TrailerGroup(t)
	}
	if doc.Trailer != nil {
		if err := decodeJSONSection(doc.Trailer, dict, &m.Trailer.FieldMap, trailerGroups); err != nil {
			return err
		}
	}

	_ = m.String()
	return nil
}

func decodeJSONSection(raw json.RawMessage, dict Dictionary, fm *FieldMap, groups func(Tag) (GroupSpec, bool)) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return decodeJSONObject(dec, dict, fm, groups)
}

// decodeJSONObject reads one object token stream in document order so that
// field insertion order follows the JSON text.
func decodeJSONObject(dec *json.Decoder, dict Dictionary, fm *FieldMap, groups func(Tag) (GroupSpec, bool)) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object", ErrJSON)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrJSON, err)
		}
		key, _ := tok.(string)

		tag, known := resolveJSONTag(dict, key)

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrJSON, err)
		}

		switch v := tok.(type) {
		case json.Delim:
			if v != '[' {
				return fmt.Errorf("%w: unexpected %q under %q", ErrJSON, v, key)
			}
			spec, isGroup := groups(tag)
			for dec.More() {
				if !known || !isGroup {
					var skip json.RawMessage
					if err := dec.Decode(&skip); err != nil {
						return fmt.Errorf("%w: %v", ErrJSON, err)
					}
					continue
				}
				entry := NewGroup(tag, spec.Delim())
				if err := decodeJSONObject(dec, dict, &entry.FieldMap, spec.Nested); err != nil {
					return err
				}
				fm.AddGroup(entry)
			}
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("%w: %v", ErrJSON, err)
			}
		case string:
			if known {
				fm.SetField(tag, v)
			}
		case json.Number:
			if known {
				fm.SetField(tag, v.String())
			}
		case bool:
			if known && v {
				fm.SetField(tag, "Y")
			} else if known {
				fm.SetField(tag, "N")
			}
		}
	}

	_, err = dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJSON, err)
	}
	return nil
}

func resolveJSONTag(dict Dictionary, key string) (Tag, bool) {
	if dict != nil {
		if t, ok := dict.FieldTag(key); ok {
			return t, true
		}
	}
	if n, err := strconv.Atoi(key); err == nil && n > 0 {
		return Tag(n), true
	}
	return 0, false
}
