package provisioning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ElementKind tells what OptionalElement found.
type ElementKind int

const (
	// ElementAbsent means the key is missing or null.
	ElementAbsent ElementKind = iota
	// ElementSingle is any non-array value.
	ElementSingle
	// ElementList means the key held an array and Raw is the indexed item.
	ElementList
)

// String returns the kind name.
func (k ElementKind) String() string {
	switch k {
	case ElementAbsent:
		return "absent"
	case ElementSingle:
		return "single"
	case ElementList:
		return "list"
	default:
		return fmt.Sprintf("ElementKind(%d)", int(k))
	}
}

// ErrIndexOutOfRange is returned when a list element is requested past its end.
var ErrIndexOutOfRange = errors.New("provisioning: element index out of range")

// Element is an optionally present field of a decoded response body.
type Element struct {
	Kind ElementKind
	Raw  json.RawMessage
}

// Present reports whether the element was found.
func (e Element) Present() bool {
	return e.Kind != ElementAbsent
}

// String returns strings unquoted and any other value as its JSON text.
// An absent element is the empty string.
func (e Element) String() string {
	if !e.Present() {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Raw, &s); err == nil {
		return s
	}
	return string(e.Raw)
}

// Decode unmarshals the element into v. Absent elements leave v untouched.
func (e Element) Decode(v any) error {
	if !e.Present() {
		return nil
	}
	return json.Unmarshal(e.Raw, v)
}

// OptionalElement reads name from content. Arrays yield their item at index.
func OptionalElement(content map[string]json.RawMessage, name string, index int) (Element, error) {
	raw, ok := content[name]
	if !ok || isNull(raw) {
		return Element{Kind: ElementAbsent}, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Element{Kind: ElementSingle, Raw: trimmed}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return Element{}, fmt.Errorf("provisioning: element %q: %w", name, err)
	}
	if index < 0 || index >= len(items) {
		return Element{}, fmt.Errorf("%w: %q[%d] of %d", ErrIndexOutOfRange, name, index, len(items))
	}
	return Element{Kind: ElementList, Raw: items[index]}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
