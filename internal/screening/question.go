package screening

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyAdded is returned by Select for a single-instance archetype that
// is already in the set.
var ErrAlreadyAdded = errors.New("screening question already added")

// ErrQuestionNotFound is returned when an id does not name a question in the set.
var ErrQuestionNotFound = errors.New("screening question not found")

// FieldError reports a patch field that is invalid for the question.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Msg }

// Question is one screening question attached to a job posting.
type Question struct {
	ID       string
	Type     Archetype
	Data     Payload
	MustHave bool
}

type questionJSON struct {
	ID       string          `json:"id"`
	Type     Archetype       `json:"type"`
	Data     json.RawMessage `json:"data"`
	MustHave bool            `json:"mustHave"`
}

// MarshalJSON writes the payload under "data" next to its type tag.
func (q Question) MarshalJSON() ([]byte, error) {
	data := q.Data
	if data == nil {
		data = emptyPayload(q.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(questionJSON{ID: q.ID, Type: q.Type, Data: raw, MustHave: q.MustHave})
}

// UnmarshalJSON picks the payload shape from the type tag and validates it.
func (q *Question) UnmarshalJSON(b []byte) error {
	var in questionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Type == "" {
		return fmt.Errorf("screening question %q has no type", in.ID)
	}
	data, err := decodePayload(in.Type, in.Data)
	if err != nil {
		return fmt.Errorf("screening question %q: %w", in.ID, err)
	}
	*q = Question{ID: in.ID, Type: in.Type, Data: data, MustHave: in.MustHave}
	return nil
}

// IdealAnswer derives the expected answer shown on review and sent to the
// backend. It depends only on the question's type and payload.
func IdealAnswer(q Question) string {
	if IsFixedAnswer(q.Type) {
		return "Yes"
	}
	if q.Data == nil {
		return emptyPayload(q.Type).idealAnswer()
	}
	return q.Data.idealAnswer()
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// Patch is a partial update of a question payload. Nil fields are left alone.
type Patch struct {
	Degree      *string     `json:"degree,omitempty"`
	Name        *string     `json:"name,omitempty"`
	Years       *int        `json:"years,omitempty"`
	Language    *string     `json:"language,omitempty"`
	Proficiency *string     `json:"proficiency,omitempty"`
	Question    *string     `json:"question,omitempty"`
	AnswerType  *string     `json:"answerType,omitempty"`
	AnswerValue *FlexString `json:"answerValue,omitempty"`
}

func (p Patch) setFields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Degree != nil, "degree")
	add(p.Name != nil, "name")
	add(p.Years != nil, "years")
	add(p.Language != nil, "language")
	add(p.Proficiency != nil, "proficiency")
	add(p.Question != nil, "question")
	add(p.AnswerType != nil, "answerType")
	add(p.AnswerValue != nil, "answerValue")
	return out
}

// apply merges p into the question's payload.
func (p Patch) apply(q Question) (Payload, error) {
	allowed := map[string]bool{}
	switch {
	case q.Type == Education:
		allowed["degree"] = true
	case isExperience(q.Type):
		allowed["name"], allowed["years"] = true, true
	case q.Type == Language:
		allowed["language"], allowed["proficiency"] = true, true
	case q.Type == CustomQuestion:
		allowed["question"], allowed["answerType"], allowed["answerValue"] = true, true, true
	}
	for _, f := range p.setFields() {
		if !allowed[f] {
			return nil, &FieldError{Field: f, Msg: fmt.Sprintf("not editable on %s questions", Label(q.Type))}
		}
	}

	data := q.Data
	if data == nil {
		data = emptyPayload(q.Type)
	}

	switch d := data.(type) {
	case EducationData:
		if p.Degree != nil {
			d.Degree = strings.TrimSpace(*p.Degree)
		}
		return d, nil
	case ExperienceData:
		if p.Name != nil {
			d.Name = strings.TrimSpace(*p.Name)
		}
		if p.Years != nil {
			if *p.Years < 0 {
				return nil, &FieldError{Field: "years", Msg: "must not be negative"}
			}
			y := *p.Years
			d.Years = &y
		}
		return d, nil
	case LanguageData:
		if p.Language != nil {
			d.Language = strings.TrimSpace(*p.Language)
		}
		if p.Proficiency != nil {
			lvl, err := ParseProficiency(*p.Proficiency)
			if err != nil {
				return nil, &FieldError{Field: "proficiency", Msg: err.Error()}
			}
			d.Proficiency = lvl
		}
		return d, nil
	case CustomData:
		if p.Question != nil {
			d.Question = strings.TrimSpace(*p.Question)
		}
		if p.AnswerType != nil {
			t, err := ParseAnswerType(*p.AnswerType)
			if err != nil {
				return nil, &FieldError{Field: "answerType", Msg: err.Error()}
			}
			if t != d.AnswerType {
				d.AnswerType = t
				// keep the old value only if it still fits the new type
				if v, err := validateAnswerValue(t, d.AnswerValue); err != nil {
					d.AnswerValue = ""
				} else {
					d.AnswerValue = v
				}
			}
		}
		if p.AnswerValue != nil {
			v, err := validateAnswerValue(d.AnswerType, string(*p.AnswerValue))
			if err != nil {
				return nil, &FieldError{Field: "answerValue", Msg: err.Error()}
			}
			d.AnswerValue = v
		}
		return d, nil
	}
	return data, nil
}

// newID builds the id for a fresh question. Multi-instance archetypes get a
// millisecond suffix, bumped until it is unique within taken.
func newID(e Entry, now time.Time, taken func(string) bool) string {
	if !e.AllowMultiple {
		return string(e.ID)
	}
	ms := now.UnixMilli()
	for {
		id := string(e.ID) + "-" + strconv.FormatInt(ms, 10)
		if !taken(id) {
			return id
		}
		ms++
	}
}
