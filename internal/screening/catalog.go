// Package screening defines the screening-question catalog attached to job
// postings and the per-archetype payloads a poster can edit.
//
// Catalog (16 archetypes):
//
//	single instance  background check, driver's license, drug test, education,
//	                 hybrid/onsite/remote work, location, urgent hiring,
//	                 visa status, work authorization
//	multi instance   expertise with skill, industry experience, language,
//	                 work experience, custom question
//
// Fixed-answer archetypes carry no editable fields; their ideal answer is
// always "Yes".
package screening

import "fmt"

// Archetype identifies a catalog entry. Values are stable and used as the
// question id for single-instance archetypes.
type Archetype string

const (
	BackgroundCheck   Archetype = "backgroundCheck"
	DriversLicense    Archetype = "driversLicense"
	DrugTest          Archetype = "drugTest"
	Education         Archetype = "education"
	ExpertiseSkill    Archetype = "expertiseWithSkill"
	HybridWork        Archetype = "hybridWork"
	IndustryExp       Archetype = "industryExperience"
	Language          Archetype = "language"
	Location          Archetype = "location"
	OnsiteWork        Archetype = "onsiteWork"
	RemoteWork        Archetype = "remoteWork"
	UrgentHiring      Archetype = "urgentHiringNeed"
	VisaStatus        Archetype = "visaStatus"
	WorkAuthorization Archetype = "workAuthorization"
	WorkExperience    Archetype = "workExperience"
	CustomQuestion    Archetype = "customQuestion"
)

// Entry is one catalog row.
type Entry struct {
	ID            Archetype `json:"id"`
	Label         string    `json:"label"`
	AllowMultiple bool      `json:"allowMultiple"`
}

var catalog = []Entry{
	{BackgroundCheck, "Background Check", false},
	{DriversLicense, "Driver's License", false},
	{DrugTest, "Drug Test", false},
	{Education, "Education", false},
	{ExpertiseSkill, "Expertise with Skill", true},
	{HybridWork, "Hybrid Work", false},
	{IndustryExp, "Industry Experience", true},
	{Language, "Language", true},
	{Location, "Location", false},
	{OnsiteWork, "Onsite Work", false},
	{RemoteWork, "Remote Work", false},
	{UrgentHiring, "Urgent Hiring Need", false},
	{VisaStatus, "Visa Status", false},
	{WorkAuthorization, "Work Authorization", false},
	{WorkExperience, "Work Experience", true},
	{CustomQuestion, "Custom Question", true},
}

var byID = func() map[Archetype]Entry {
	m := make(map[Archetype]Entry, len(catalog))
	for _, e := range catalog {
		m[e.ID] = e
	}
	return m
}()

// Catalog returns a copy of the fixed catalog in display order.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for id.
func Lookup(id Archetype) (Entry, error) {
	e, ok := byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("unknown screening question type %q", id)
	}
	return e, nil
}

// Label returns the display label of a, or the raw id for unknown types.
func Label(a Archetype) string {
	if e, ok := byID[a]; ok {
		return e.Label
	}
	return string(a)
}

// IsFixedAnswer reports whether a has no editable fields.
func IsFixedAnswer(a Archetype) bool {
	switch a {
	case BackgroundCheck, DriversLicense, DrugTest, HybridWork, Location,
		OnsiteWork, RemoteWork, UrgentHiring, VisaStatus, WorkAuthorization:
		return true
	}
	return false
}

func isExperience(a Archetype) bool {
	return a == ExpertiseSkill || a == IndustryExp || a == WorkExperience
}
