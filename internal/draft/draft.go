package draft

import (
	"time"

	"github.com/google/uuid"

	"jobmate/posting-service/internal/screening"
)

// PageState tells submit whether to create a posting or update one.
type PageState string

const (
	PageCreate PageState = "create"
	PageUpdate PageState = "update"
)

// Company references the hiring company.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Core holds the job fields entered upstream of the screening workflow.
type Core struct {
	Title         string  `json:"title"`
	Company       Company `json:"company"`
	Industry      string  `json:"industry,omitempty"`
	WorkplaceType string  `json:"workplaceType,omitempty"`
	JobType       string  `json:"jobType,omitempty"`
	Location      string  `json:"location,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// User is the acting account, as forwarded by the gateway.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Draft is the job draft owned by a single workflow controller.
type Draft struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	UserEmail     string    `json:"userEmail,omitempty"`
	Stage         Stage     `json:"stage"`
	PageState     PageState `json:"pageState"`
	ExistingJobID string    `json:"existingJobId,omitempty"`

	Core      Core                `json:"job"`
	Questions *screening.Set      `json:"screeningQuestions"`
	Rejection RejectionSettings   `json:"rejectionSettings"`
	Applicant ApplicantManagement `json:"applicantManagement"`
	Panel     Panel               `json:"panel"`

	IdempotencyKey string    `json:"idempotencyKey"`
	Submitting     bool      `json:"submitting"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// New starts a fresh posting draft in the authoring stage.
func New(u User, core Core, now time.Time) *Draft {
	qs, _ := screening.NewSet(nil)
	applicant := ApplicantManagement{EmailUpdates: u.Email}
	return &Draft{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		UserEmail:      u.Email,
		Stage:          StageAuthoring,
		PageState:      PageCreate,
		Core:           core,
		Questions:      qs,
		Applicant:      applicant,
		Panel:          NewPanel(RejectionSettings{}, applicant),
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Seed starts a draft that updates posting jobID. It enters at the assembly
// stage with one Education question already present.
func Seed(u User, jobID string, in Normalized, now time.Time) *Draft {
	d := New(u, in.Core, now)
	d.PageState = PageUpdate
	d.ExistingJobID = jobID
	d.Stage = StageAssembly
	_, _ = d.Questions.Select(screening.Education, now)

	if in.Rejection != nil {
		d.Rejection = *in.Rejection
		d.Rejection.SetMessage(d.Rejection.Message)
	}
	if in.ApplicationEmail != "" {
		d.Applicant.EmailUpdates = in.ApplicationEmail
	}
	d.Panel = NewPanel(d.Rejection, d.Applicant)
	return d
}

// Freeze copies the panel's editable settings into the draft. It runs when
// the draft leaves assembly for review.
func (d *Draft) Freeze() {
	d.Panel.Save()
	d.Rejection = d.Panel.Rejection
	d.Applicant = d.Panel.Applicant
}

// Touch records a mutation.
func (d *Draft) Touch(now time.Time) { d.UpdatedAt = now }
