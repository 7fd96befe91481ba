package draft

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MaxRejectionMessage bounds the auto-rejection message, in characters.
const MaxRejectionMessage = 3000

// RejectionSettings configures auto-rejection of applicants who fail a
// must-have question.
type RejectionSettings struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// SetMessage stores msg cut to MaxRejectionMessage characters and reports
// whether it had to cut. Edits are accepted whether or not Enabled is set.
func (r *RejectionSettings) SetMessage(msg string) (truncated bool) {
	if utf8.RuneCountInString(msg) <= MaxRejectionMessage {
		r.Message = msg
		return false
	}
	runes := []rune(msg)
	r.Message = string(runes[:MaxRejectionMessage])
	return true
}

// Remaining is the live character counter shown under the message box.
func (r RejectionSettings) Remaining() int {
	return MaxRejectionMessage - utf8.RuneCountInString(r.Message)
}

// ApplicantManagement holds where applicant-status notifications go.
type ApplicantManagement struct {
	EmailUpdates string `json:"emailUpdates"`
}

// ValidateEmail accepts an empty address (the request falls back to a
// default) or a single bare address.
func ValidateEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("%q is not a valid email address", s)
	}
	return s, nil
}

// Settings groups shown on the assembly panel.
const (
	GroupNone       = -1
	GroupQuestions  = 0
	GroupRejection  = 1
	GroupApplicants = 2
)

// Panel is the assembly panel: editable copies of the settings and the one
// group currently in edit mode.
type Panel struct {
	Editing   int                 `json:"editing"`
	Rejection RejectionSettings   `json:"rejection"`
	Applicant ApplicantManagement `json:"applicant"`

	// snapshot of the group being edited, restored by Cancel
	SavedRejection *RejectionSettings   `json:"savedRejection,omitempty"`
	SavedApplicant *ApplicantManagement `json:"savedApplicant,omitempty"`
}

// NewPanel returns a panel with no group in edit mode.
func NewPanel(r RejectionSettings, a ApplicantManagement) Panel {
	return Panel{Editing: GroupNone, Rejection: r, Applicant: a}
}

// Edit puts group i in edit mode; any other group returns to its summary.
func (p *Panel) Edit(i int) error {
	if i < GroupQuestions || i > GroupApplicants {
		return fmt.Errorf("unknown settings group %d", i)
	}
	p.Editing = i
	p.SavedRejection, p.SavedApplicant = nil, nil
	switch i {
	case GroupRejection:
		r := p.Rejection
		p.SavedRejection = &r
	case GroupApplicants:
		a := p.Applicant
		p.SavedApplicant = &a
	}
	return nil
}

// Cancel restores the group being edited and leaves edit mode.
func (p *Panel) Cancel() {
	if p.SavedRejection != nil {
		p.Rejection = *p.SavedRejection
	}
	if p.SavedApplicant != nil {
		p.Applicant = *p.SavedApplicant
	}
	p.close()
}

// Save keeps the edits and leaves edit mode.
func (p *Panel) Save() { p.close() }

func (p *Panel) close() {
	p.Editing = GroupNone
	p.SavedRejection, p.SavedApplicant = nil, nil
}
