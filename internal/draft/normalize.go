package draft

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Normalized is the canonical form of an upstream job shape.
type Normalized struct {
	Core Core

	// set only when the upstream shape is an existing posting
	Rejection        *RejectionSettings
	ApplicationEmail string
}

var (
	titlePaths       = []string{"title", "jobTitle", "job.title"}
	companyIDPaths   = []string{"companyId", "company._id", "company.id", "companyData.company._id", "companyData._id"}
	companyNamePaths = []string{"companyName", "company.name", "companyData.company.name", "companyData.name"}
	locationPaths    = []string{"location", "jobLocation", "job.location"}
)

// ErrMissingField is returned when a required job field is absent in every
// known shape.
var ErrMissingField = errors.New("missing required job field")

// Normalize maps either upstream shape (a fresh create form, or an existing
// posting being edited) into one Normalized value.
func Normalize(raw []byte) (Normalized, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Normalized{}, fmt.Errorf("decode job: %w", err)
	}
	if m == nil {
		return Normalized{}, fmt.Errorf("decode job: %w", ErrMissingField)
	}

	n := Normalized{Core: Core{
		Title: first(m, titlePaths...),
		Company: Company{
			ID:   first(m, companyIDPaths...),
			Name: first(m, companyNamePaths...),
		},
		Industry:      first(m, "industry", "job.industry"),
		WorkplaceType: first(m, "workplaceType", "job.workplaceType"),
		JobType:       first(m, "jobType", "job.jobType"),
		Location:      first(m, locationPaths...),
		Description:   first(m, "description", "job.description"),
	}}
	if n.Core.Title == "" {
		return Normalized{}, fmt.Errorf("title: %w", ErrMissingField)
	}
	if n.Core.Company.ID == "" {
		return Normalized{}, fmt.Errorf("company id: %w", ErrMissingField)
	}

	enabled, hasFlag := lookup(m, "autoRejectMustHave").(bool)
	preview := first(m, "rejectPreview")
	if hasFlag || preview != "" {
		n.Rejection = &RejectionSettings{Enabled: enabled, Message: preview}
	}
	n.ApplicationEmail = first(m, "applicationEmail")
	return n, nil
}

// first returns the first non-empty scalar found at any of the dotted paths.
func first(m map[string]any, paths ...string) string {
	for _, p := range paths {
		switch v := lookup(m, p).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func lookup(m map[string]any, path string) any {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}
