package fabric

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/zoobzio/sentinel"
)

// Metadata describes one component. The named fields form the documented
// key set; Extra carries forward-compatible keys written by external
// collaborators. Metadata serializes as a single flat JSON object: named
// fields under their json tags, Extra entries alongside them.
type Metadata struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Extra       map[string]any `json:"-"`
}

var (
	canonicalOnce sync.Once
	canonicalKeys map[string]struct{}
)

// canonicalMetadataKeys returns the documented key set, derived from the
// Metadata struct tags via sentinel so the set cannot drift from the type.
func canonicalMetadataKeys() map[string]struct{} {
	canonicalOnce.Do(func() {
		canonicalKeys = make(map[string]struct{})
		meta := sentinel.Inspect[Metadata]()
		for _, field := range meta.Fields {
			tag := field.Tags["json"]
			if tag == "" || tag == "-" {
				continue
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			canonicalKeys[tag] = struct{}{}
		}
	})
	return canonicalKeys
}

// MarshalJSON flattens the named fields and Extra into one object.
// A set named field wins over an Extra entry under the same key.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.Kind != "" {
		out["kind"] = m.Kind
	}
	return json.Marshal(out)
}

// UnmarshalJSON routes canonical keys to named fields and everything else
// into Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	canonical := canonicalMetadataKeys()
	for k, v := range raw {
		if _, ok := canonical[k]; ok {
			// A non-string value under a canonical key is preserved in
			// Extra rather than dropped.
			s, ok := v.(string)
			if !ok {
				if m.Extra == nil {
					m.Extra = make(map[string]any)
				}
				m.Extra[k] = v
				continue
			}
			switch k {
			case "name":
				m.Name = s
			case "description":
				m.Description = s
			case "kind":
				m.Kind = s
			}
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return nil
}

// clone returns a copy whose Extra map is independent of the original.
func (m Metadata) clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// value resolves a filter field name against the metadata: named struct
// fields first, then Extra keys.
func (m Metadata) value(field string) (any, bool) {
	switch field {
	case "Name":
		return m.Name, true
	case "Description":
		return m.Description, true
	case "Kind":
		return m.Kind, true
	}
	v, ok := m.Extra[field]
	return v, ok
}
