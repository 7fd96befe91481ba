package screening_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobmate/posting-service/internal/screening"
)

func TestIdealAnswer_FixedArchetypesAlwaysYes(t *testing.T) {
	fixed := []screening.Archetype{
		screening.BackgroundCheck, screening.DriversLicense, screening.DrugTest,
		screening.HybridWork, screening.Location, screening.OnsiteWork,
		screening.RemoteWork, screening.UrgentHiring, screening.VisaStatus,
		screening.WorkAuthorization,
	}
	// payload contents must not matter
	noise := []screening.Payload{
		nil,
		screening.FixedAnswer{},
		screening.CustomData{AnswerValue: "No"},
		screening.EducationData{Degree: "PhD"},
	}
	for _, a := range fixed {
		for _, p := range noise {
			q := screening.Question{ID: string(a), Type: a, Data: p}
			assert.Equal(t, "Yes", screening.IdealAnswer(q), "%s with %#v", a, p)
		}
	}
}

func TestIdealAnswer_Table(t *testing.T) {
	four := 4
	cases := []struct {
		name string
		q    screening.Question
		want string
	}{
		{"education set", screening.Question{Type: screening.Education, Data: screening.EducationData{Degree: "Bachelor's"}}, "Bachelor's"},
		{"education empty", screening.Question{Type: screening.Education, Data: screening.EducationData{}}, "Not specified"},
		{"skill years", screening.Question{Type: screening.ExpertiseSkill, Data: screening.ExperienceData{Name: "Go", Years: &four}}, "4"},
		{"industry no years", screening.Question{Type: screening.IndustryExp, Data: screening.ExperienceData{Name: "Fintech"}}, "Not specified"},
		{"work experience nil payload", screening.Question{Type: screening.WorkExperience}, "Not specified"},
		{"language full", screening.Question{Type: screening.Language, Data: screening.LanguageData{Language: "French", Proficiency: screening.Professional}}, "Professional in French"},
		{"language empty", screening.Question{Type: screening.Language, Data: screening.LanguageData{}}, "any level in specified language"},
		{"language only name", screening.Question{Type: screening.Language, Data: screening.LanguageData{Language: "German"}}, "any level in German"},
		{"custom number", screening.Question{Type: screening.CustomQuestion, Data: screening.CustomData{AnswerType: screening.AnswerNumber, AnswerValue: "42"}}, "42"},
		{"custom number absent", screening.Question{Type: screening.CustomQuestion, Data: screening.CustomData{AnswerType: screening.AnswerNumber}}, "Not specified"},
		{"custom yesno", screening.Question{Type: screening.CustomQuestion, Data: screening.CustomData{AnswerType: screening.AnswerYesNo, AnswerValue: "No"}}, "No"},
		{"unknown type", screening.Question{Type: "salary", Data: screening.UnknownData{AnswerValue: "100k"}}, "100k"},
		{"unknown type empty", screening.Question{Type: "salary"}, "Not specified"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, screening.IdealAnswer(c.q))
		})
	}
}
