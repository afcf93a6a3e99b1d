package binxml

import "strings"

// contentItemXMLText renders one value-shaped content item (used for
// attribute values, which are always a single Value or Substitution).
func contentItemXMLText(it contentItem) string {
	if it.value != nil {
		return valueXMLText(it.value.vt, it.value.data)
	}
	return xmlEscape(it.text)
}

func writeElementXML(sb *strings.Builder, n *elementNode) {
	sb.WriteByte('<')
	sb.WriteString(n.name)
	for _, a := range n.attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.name)
		sb.WriteString(`="`)
		sb.WriteString(a.text)
		sb.WriteByte('"')
	}
	if len(n.children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	for _, ch := range n.children {
		writeContentItemXML(sb, ch)
	}
	sb.WriteString("</")
	sb.WriteString(n.name)
	sb.WriteByte('>')
}

func writeContentItemXML(sb *strings.Builder, ch contentItem) {
	switch {
	case ch.isRawXML:
		sb.WriteString(ch.text)
	case ch.elem != nil:
		writeElementXML(sb, ch.elem)
	case ch.value != nil:
		sb.WriteString(valueXMLText(ch.value.vt, ch.value.data))
	default:
		sb.WriteString(xmlEscape(ch.text))
	}
}

// elementToJSON converts a structural element tree into its JSON form per
// spec §4.3.7: a childless, attributeless element is null; an element
// whose only content is a single value is that value's native JSON type;
// everything else is an object with #attributes/#text and duplicate-name
// suffixing.
func elementToJSON(n *elementNode) jsonValue {
	if len(n.attrs) == 0 && len(n.children) == 1 && n.children[0].value != nil {
		return valueJSONValue(n.children[0].value.vt, n.children[0].value.data)
	}
	if len(n.attrs) == 0 && len(n.children) == 0 {
		return jsonNull
	}

	obj := newJSONObject()
	if len(n.attrs) > 0 {
		attrs := newJSONObject()
		for _, a := range n.attrs {
			attrs.set(a.name, jsonString(a.text))
		}
		obj.set("#attributes", attrs)
	}

	var text []string
	for _, ch := range n.children {
		switch {
		case ch.elem != nil:
			if (n.name == "EventData" || n.name == "UserData") && ch.elem.name == "Data" {
				if name, ok := findAttr(ch.elem.attrs, "Name"); ok {
					obj.set(name, dataElementJSONValue(ch.elem))
					continue
				}
			}
			obj.set(ch.elem.name, elementToJSON(ch.elem))
		case ch.value != nil:
			text = append(text, valueJSONText(ch.value.vt, ch.value.data))
		default:
			text = append(text, ch.text)
		}
	}
	if len(text) > 0 {
		obj.set("#text", jsonString(strings.Join(text, "")))
	}
	if obj.len() == 0 {
		return jsonNull
	}
	return obj
}

func findAttr(attrs []attrNode, name string) (string, bool) {
	for _, a := range attrs {
		if a.name == name {
			return a.text, true
		}
	}
	return "", false
}

// dataElementJSONValue renders a flattened <Data Name="X">...</Data> child
// of EventData/UserData, dropping the Name attribute that already became
// the object key (spec §4.3.7).
func dataElementJSONValue(n *elementNode) jsonValue {
	if len(n.attrs) <= 1 && len(n.children) == 1 && n.children[0].value != nil {
		return valueJSONValue(n.children[0].value.vt, n.children[0].value.data)
	}
	stripped := &elementNode{name: n.name, children: n.children}
	for _, a := range n.attrs {
		if a.name != "Name" {
			stripped.attrs = append(stripped.attrs, a)
		}
	}
	return elementToJSON(stripped)
}
