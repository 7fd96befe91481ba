package screening

import (
	"encoding/json"
	"fmt"
	"time"
)

// Set is the ordered list of questions on a draft. Order is insertion order.
type Set struct {
	items []Question
}

// NewSet builds a set from existing questions, rejecting any list that breaks
// the single-instance rule or repeats an id.
func NewSet(qs []Question) (*Set, error) {
	s := &Set{}
	seenType := map[Archetype]bool{}
	seenID := map[string]bool{}
	for _, q := range qs {
		if seenID[q.ID] {
			return nil, fmt.Errorf("duplicate screening question id %q", q.ID)
		}
		if e, err := Lookup(q.Type); err == nil && !e.AllowMultiple && seenType[q.Type] {
			return nil, fmt.Errorf("%s may only be added once", e.Label)
		}
		seenID[q.ID] = true
		seenType[q.Type] = true
		s.items = append(s.items, q)
	}
	return s, nil
}

// Questions returns a copy of the questions in insertion order.
func (s *Set) Questions() []Question {
	out := make([]Question, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of questions.
func (s *Set) Len() int { return len(s.items) }

func (s *Set) has(a Archetype) bool {
	for _, q := range s.items {
		if q.Type == a {
			return true
		}
	}
	return false
}

func (s *Set) index(id string) int {
	for i, q := range s.items {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// Selectable reports whether a catalog button for a should be enabled.
func (s *Set) Selectable(a Archetype) bool {
	e, err := Lookup(a)
	if err != nil {
		return false
	}
	return e.AllowMultiple || !s.has(a)
}

// EntryView is a catalog entry together with its availability on this set.
type EntryView struct {
	Entry
	Added      bool `json:"added"`
	Selectable bool `json:"selectable"`
}

// CatalogView returns the catalog annotated for rendering.
func (s *Set) CatalogView() []EntryView {
	out := make([]EntryView, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, EntryView{Entry: e, Added: s.has(e.ID), Selectable: s.Selectable(e.ID)})
	}
	return out
}

// Select appends an empty question of archetype a. A single-instance archetype
// that is already present yields ErrAlreadyAdded and no change.
func (s *Set) Select(a Archetype, now time.Time) (Question, error) {
	e, err := Lookup(a)
	if err != nil {
		return Question{}, err
	}
	if !e.AllowMultiple && s.has(a) {
		return Question{}, fmt.Errorf("%s: %w", e.Label, ErrAlreadyAdded)
	}
	q := Question{
		ID:   newID(e, now, func(id string) bool { return s.index(id) >= 0 }),
		Type: a,
		Data: emptyPayload(a),
	}
	s.items = append(s.items, q)
	return q, nil
}

// Update merges p into the payload of question id.
func (s *Set) Update(id string, p Patch) (Question, error) {
	i := s.index(id)
	if i < 0 {
		return Question{}, ErrQuestionNotFound
	}
	data, err := p.apply(s.items[i])
	if err != nil {
		return Question{}, err
	}
	s.items[i].Data = data
	return s.items[i], nil
}

// Remove drops question id. Unknown ids are ignored.
func (s *Set) Remove(id string) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// SetMustHave toggles the must-have flag of question id only.
func (s *Set) SetMustHave(id string, mustHave bool) (Question, error) {
	i := s.index(id)
	if i < 0 {
		return Question{}, ErrQuestionNotFound
	}
	s.items[i].MustHave = mustHave
	return s.items[i], nil
}

func (s *Set) MarshalJSON() ([]byte, error) {
	if s == nil || s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var qs []Question
	if err := json.Unmarshal(b, &qs); err != nil {
		return err
	}
	ns, err := NewSet(qs)
	if err != nil {
		return err
	}
	*s = *ns
	return nil
}
