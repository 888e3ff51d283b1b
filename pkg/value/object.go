// ABOUTME: Insertion-ordered containers: plain objects, maps and sets
// ABOUTME: Maps and sets compare members with SameValueZero

package value

// Object is a plain object with string keys in insertion order.
type Object struct {
	keys  []string
	props map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{props: make(map[string]Value)}
}

// ObjectOf builds an object from alternating key, value arguments.
func ObjectOf(kv ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1].(Value))
	}
	return o
}

func (*Object) Kind() Kind { return KindObject }

// Set adds or replaces a property. New keys go last.
func (o *Object) Set(key string, v Value) {
	if o.props == nil {
		o.props = make(map[string]Value)
	}
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

// Get returns a property.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Delete removes a property.
func (o *Object) Delete(key string) {
	if _, ok := o.props[key]; !ok {
		return
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the property names in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of properties.
func (o *Object) Len() int {
	return len(o.keys)
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is an insertion-ordered map with arbitrary keys.
type Map struct {
	entries []MapEntry
}

func NewMap() *Map {
	return &Map{}
}

func (*Map) Kind() Kind { return KindMap }

func (m *Map) find(key Value) int {
	for i, e := range m.entries {
		if SameValueZero(e.Key, key) {
			return i
		}
	}
	return -1
}

// Set adds or replaces the entry for key.
func (m *Map) Set(key, v Value) {
	if i := m.find(key); i >= 0 {
		m.entries[i].Value = v
		return
	}
	m.entries = append(m.entries, MapEntry{Key: key, Value: v})
}

// Get returns the value for key.
func (m *Map) Get(key Value) (Value, bool) {
	if i := m.find(key); i >= 0 {
		return m.entries[i].Value, true
	}
	return nil, false
}

// Delete removes the entry for key.
func (m *Map) Delete(key Value) bool {
	i := m.find(key)
	if i < 0 {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return true
}

// Entries returns the entries in insertion order.
func (m *Map) Entries() []MapEntry {
	return append([]MapEntry(nil), m.entries...)
}

func (m *Map) Len() int {
	return len(m.entries)
}

// Set is an insertion-ordered set.
type Set struct {
	items []Value
}

func NewSet(items ...Value) *Set {
	s := &Set{}
	for _, v := range items {
		s.Add(v)
	}
	return s
}

func (*Set) Kind() Kind { return KindSet }

// Add inserts v unless an equal member exists.
func (s *Set) Add(v Value) {
	if !s.Has(v) {
		s.items = append(s.items, v)
	}
}

func (s *Set) Has(v Value) bool {
	for _, item := range s.items {
		if SameValueZero(item, v) {
			return true
		}
	}
	return false
}

func (s *Set) Delete(v Value) bool {
	for i, item := range s.items {
		if SameValueZero(item, v) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Values returns the members in insertion order.
func (s *Set) Values() []Value {
	return append([]Value(nil), s.items...)
}

func (s *Set) Len() int {
	return len(s.items)
}
