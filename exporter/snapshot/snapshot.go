package snapshot

import "time"

// Entry is one named gauge value
type Entry struct {
	Name  string
	Value float64
}

// Snapshot is an immutable set of gauge values taken at one instant.
// Entries keep the order in which they were first set.
type Snapshot struct {
	entries []Entry
	index   map[string]int
	takenAt time.Time
}

// TakenAt returns when the snapshot was computed
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Age returns how old the snapshot is at now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.takenAt)
}

// Len returns the number of entries
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Get returns the value of name
func (s *Snapshot) Get(name string) (float64, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.entries[i].Value, true
}

// Has reports whether name is set
func (s *Snapshot) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Entries returns a copy of the entries in insertion order
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Names returns the entry names in insertion order
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Builder accumulates entries for a Snapshot. It is not safe for
// concurrent use.
type Builder struct {
	entries []Entry
	index   map[string]int
	takenAt time.Time
}

// NewBuilder starts a snapshot computed at takenAt
func NewBuilder(takenAt time.Time) *Builder {
	return &Builder{
		index:   make(map[string]int),
		takenAt: takenAt,
	}
}

// Set assigns value to name. Overwriting keeps the original position.
func (b *Builder) Set(name string, value float64) {
	if i, ok := b.index[name]; ok {
		b.entries[i].Value = value
		return
	}
	b.index[name] = len(b.entries)
	b.entries = append(b.entries, Entry{Name: name, Value: value})
}

// SetBool assigns 1 for true and 0 for false
func (b *Builder) SetBool(name string, value bool) {
	if value {
		b.Set(name, 1)
		return
	}
	b.Set(name, 0)
}

// Get returns the current value of name
func (b *Builder) Get(name string) (float64, bool) {
	i, ok := b.index[name]
	if !ok {
		return 0, false
	}
	return b.entries[i].Value, true
}

// Has reports whether name is set
func (b *Builder) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Build returns the snapshot. Later changes to the builder do not affect it.
func (b *Builder) Build() *Snapshot {
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)

	index := make(map[string]int, len(b.index))
	for name, i := range b.index {
		index[name] = i
	}

	return &Snapshot{entries: entries, index: index, takenAt: b.takenAt}
}
