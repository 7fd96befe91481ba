package draft

import (
	"strings"

	"jobmate/posting-service/internal/screening"
)

// Defaults fill request fields the draft leaves empty.
type Defaults struct {
	Industry         string `yaml:"industry"`
	WorkplaceType    string `yaml:"workplace_type"`
	PlaceholderEmail string `yaml:"placeholder_email"`
	// RejectTemplate may reference {title} and {company}.
	RejectTemplate string `yaml:"reject_template"`
}

// DefaultDefaults returns the built-in fallbacks.
func DefaultDefaults() Defaults {
	return Defaults{
		Industry:         "Technology, Information and Internet",
		WorkplaceType:    "Remote",
		PlaceholderEmail: "noreply@example.com",
		RejectTemplate: "Thank you for your interest in the {title} position at {company}. " +
			"After careful review, we have decided not to move forward with your application.",
	}
}

// ScreeningAnswer is one screening question as the backend expects it.
type ScreeningAnswer struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"idealAnswer"`
	MustHave    bool   `json:"mustHave"`
}

// JobRequest is the flat create/update payload.
type JobRequest struct {
	CompanyID          string            `json:"companyId"`
	Title              string            `json:"title"`
	Industry           string            `json:"industry"`
	WorkplaceType      string            `json:"workplaceType"`
	JobLocation        string            `json:"jobLocation"`
	JobType            string            `json:"jobType"`
	Description        string            `json:"description"`
	ApplicationEmail   string            `json:"applicationEmail"`
	ScreeningQuestions []ScreeningAnswer `json:"screeningQuestions"`
	AutoRejectMustHave bool              `json:"autoRejectMustHave"`
	RejectPreview      string            `json:"rejectPreview"`
}

// BuildRequest flattens a frozen draft into the backend payload.
func BuildRequest(d *Draft, def Defaults) JobRequest {
	c := d.Core
	req := JobRequest{
		CompanyID:          c.Company.ID,
		Title:              c.Title,
		Industry:           or(c.Industry, def.Industry),
		WorkplaceType:      or(c.WorkplaceType, def.WorkplaceType, "Remote"),
		JobLocation:        c.Location,
		JobType:            c.JobType,
		Description:        c.Description,
		ApplicationEmail:   or(d.Applicant.EmailUpdates, def.PlaceholderEmail),
		ScreeningQuestions: []ScreeningAnswer{},
		AutoRejectMustHave: d.Rejection.Enabled,
		RejectPreview:      or(d.Rejection.Message, rejectPreview(def.RejectTemplate, c)),
	}
	if d.Questions != nil {
		for _, q := range d.Questions.Questions() {
			req.ScreeningQuestions = append(req.ScreeningQuestions, ScreeningAnswer{
				Question:    screening.Label(q.Type),
				IdealAnswer: screening.IdealAnswer(q),
				MustHave:    q.MustHave,
			})
		}
	}
	return req
}

func rejectPreview(tmpl string, c Core) string {
	company := or(c.Company.Name, "our company")
	title := or(c.Title, "open")
	return strings.NewReplacer("{title}", title, "{company}", company).Replace(tmpl)
}

func or(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ReviewQuestion is a question as rendered on the review screen.
type ReviewQuestion struct {
	ID          string              `json:"id"`
	Type        screening.Archetype `json:"type"`
	Label       string              `json:"label"`
	Prompt      string              `json:"prompt,omitempty"`
	IdealAnswer string              `json:"idealAnswer"`
	MustHave    bool                `json:"mustHave"`
}

// Review is the read-only projection of a draft.
type Review struct {
	DraftID       string              `json:"draftId"`
	PageState     PageState           `json:"pageState"`
	ExistingJobID string              `json:"existingJobId,omitempty"`
	Job           Core                `json:"job"`
	Questions     []ReviewQuestion    `json:"screeningQuestions"`
	Rejection     RejectionSettings   `json:"rejectionSettings"`
	Applicant     ApplicantManagement `json:"applicantManagement"`
}

// Projection renders d for review. It does not modify d.
func Projection(d *Draft) Review {
	r := Review{
		DraftID:       d.ID,
		PageState:     d.PageState,
		ExistingJobID: d.ExistingJobID,
		Job:           d.Core,
		Questions:     []ReviewQuestion{},
		Rejection:     d.Rejection,
		Applicant:     d.Applicant,
	}
	if d.Questions == nil {
		return r
	}
	for _, q := range d.Questions.Questions() {
		r.Questions = append(r.Questions, ReviewQuestion{
			ID:          q.ID,
			Type:        q.Type,
			Label:       screening.Label(q.Type),
			Prompt:      prompt(q),
			IdealAnswer: screening.IdealAnswer(q),
			MustHave:    q.MustHave,
		})
	}
	return r
}

func prompt(q screening.Question) string {
	switch v := q.Data.(type) {
	case screening.CustomData:
		return v.Question
	case screening.ExperienceData:
		return v.Name
	case screening.LanguageData:
		return v.Language
	case screening.EducationData:
		return v.Degree
	}
	return ""
}
