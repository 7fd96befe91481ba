package screening

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Proficiency is the required level for a language question.
type Proficiency string

const (
	Conversational    Proficiency = "Conversational"
	Professional      Proficiency = "Professional"
	NativeOrBilingual Proficiency = "Native or Bilingual"
)

// AnswerType is the expected answer kind of a custom question.
type AnswerType string

const (
	AnswerYesNo  AnswerType = "yesno"
	AnswerNumber AnswerType = "number"
)

// ParseProficiency rejects anything outside the three tiers. Empty is allowed
// and means "any level".
func ParseProficiency(s string) (Proficiency, error) {
	p := Proficiency(s)
	switch p {
	case "", Conversational, Professional, NativeOrBilingual:
		return p, nil
	}
	return "", fmt.Errorf("unknown proficiency %q", s)
}

// ParseAnswerType rejects anything but yesno and number. Empty is allowed.
func ParseAnswerType(s string) (AnswerType, error) {
	t := AnswerType(s)
	switch t {
	case "", AnswerYesNo, AnswerNumber:
		return t, nil
	}
	return "", fmt.Errorf("unknown answer type %q", s)
}

// Payload is the archetype-specific part of a question.
type Payload interface {
	idealAnswer() string
}

// FixedAnswer is the payload of archetypes without editable fields.
type FixedAnswer struct{}

// EducationData holds the required degree.
type EducationData struct {
	Degree string `json:"degree,omitempty"`
}

// ExperienceData is shared by skill, industry and work-experience questions.
type ExperienceData struct {
	Name  string `json:"name,omitempty"`
	Years *int   `json:"years,omitempty"`
}

// LanguageData holds the language and the required tier.
type LanguageData struct {
	Language    string      `json:"language,omitempty"`
	Proficiency Proficiency `json:"proficiency,omitempty"`
}

// CustomData is a free-form question with a typed expected answer.
type CustomData struct {
	Question    string     `json:"question,omitempty"`
	AnswerType  AnswerType `json:"answerType,omitempty"`
	AnswerValue string     `json:"answerValue,omitempty"`
}

// UnknownData keeps the payload of a type this build does not know about.
type UnknownData struct {
	AnswerValue string `json:"answerValue,omitempty"`
}

const notSpecified = "Not specified"

func (FixedAnswer) idealAnswer() string { return "Yes" }

func (d EducationData) idealAnswer() string { return orNotSpecified(d.Degree) }

func (d ExperienceData) idealAnswer() string {
	if d.Years == nil {
		return notSpecified
	}
	return strconv.Itoa(*d.Years)
}

func (d LanguageData) idealAnswer() string {
	level := string(d.Proficiency)
	if level == "" {
		level = "any level"
	}
	lang := d.Language
	if lang == "" {
		lang = "specified language"
	}
	return level + " in " + lang
}

func (d CustomData) idealAnswer() string { return orNotSpecified(d.AnswerValue) }

func (d UnknownData) idealAnswer() string { return orNotSpecified(d.AnswerValue) }

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}

// emptyPayload returns the zero payload for a.
func emptyPayload(a Archetype) Payload {
	switch {
	case IsFixedAnswer(a):
		return FixedAnswer{}
	case a == Education:
		return EducationData{}
	case isExperience(a):
		return ExperienceData{}
	case a == Language:
		return LanguageData{}
	case a == CustomQuestion:
		return CustomData{}
	}
	return UnknownData{}
}

// validateAnswerValue checks v against t. Yes/No answers are normalised to
// their canonical casing.
func validateAnswerValue(t AnswerType, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	switch t {
	case AnswerYesNo:
		switch strings.ToLower(v) {
		case "yes":
			return "Yes", nil
		case "no":
			return "No", nil
		}
		return "", fmt.Errorf("answer value must be Yes or No, got %q", v)
	case AnswerNumber:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("answer value must be numeric, got %q", v)
		}
		return v, nil
	}
	return "", fmt.Errorf("answer type must be set before an answer value")
}

func decodePayload(a Archetype, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return emptyPayload(a), nil
	}
	switch p := emptyPayload(a).(type) {
	case FixedAnswer:
		return p, nil
	case EducationData:
		err := json.Unmarshal(raw, &p)
		return p, err
	case ExperienceData:
		err := json.Unmarshal(raw, &p)
		if err == nil && p.Years != nil && *p.Years < 0 {
			err = fmt.Errorf("years must not be negative")
		}
		return p, err
	case LanguageData:
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		_, err := ParseProficiency(string(p.Proficiency))
		return p, err
	case CustomData:
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if _, err := ParseAnswerType(string(p.AnswerType)); err != nil {
			return nil, err
		}
		v, err := validateAnswerValue(p.AnswerType, p.AnswerValue)
		p.AnswerValue = v
		return p, err
	default:
		var u UnknownData
		err := json.Unmarshal(raw, &u)
		return u, err
	}
}
