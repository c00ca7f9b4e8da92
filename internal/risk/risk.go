// Package risk holds the project risk register model: scoring, severity
// badges and the status vocabulary.
package risk

import (
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

type Category string

const (
	CategoryTechnical      Category = "technical"
	CategorySchedule       Category = "schedule"
	CategoryCost           Category = "cost"
	CategoryResource       Category = "resource"
	CategoryExternal       Category = "external"
	CategoryOrganizational Category = "organizational"
)

type Impact string

const (
	ImpactVeryLow  Impact = "very_low"
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactVeryHigh Impact = "very_high"
)

var impactWeight = map[Impact]float64{
	ImpactVeryLow:  1,
	ImpactLow:      2,
	ImpactMedium:   3,
	ImpactHigh:     4,
	ImpactVeryHigh: 5,
}

// MaxScore is the score of a certain, very high impact risk.
const MaxScore = 5.0

type Strategy string

const (
	StrategyAvoid    Strategy = "avoid"
	StrategyMitigate Strategy = "mitigate"
	StrategyTransfer Strategy = "transfer"
	StrategyAccept   Strategy = "accept"
)

type Status string

const (
	StatusIdentified Status = "identified"
	StatusAnalyzed   Status = "analyzed"
	StatusPlanned    Status = "planned"
	StatusMonitored  Status = "monitored"
	StatusClosed     Status = "closed"

	// Legacy vocabulary, accepted on input only.
	StatusOpen      Status = "open"
	StatusMitigated Status = "mitigated"
)

var legacyStatus = map[Status]Status{
	StatusOpen:      StatusIdentified,
	StatusMitigated: StatusMonitored,
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Patch field names understood by the persistence layer.
const (
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldCategory         = "category"
	FieldProbability      = "probability"
	FieldImpact           = "impact"
	FieldResponseStrategy = "response_strategy"
	FieldResponsePlan     = "response_plan"
	FieldMitigationPlan   = "mitigation_plan"
	FieldStatus           = "status"
	FieldOwner            = "owner"
	FieldSprintID         = "sprint_id"
)

// Risk is an entry in a project's risk register.
type Risk struct {
	ID               string    `json:"id"`
	Project          string    `json:"project"`
	SprintID         string    `json:"sprint_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         Category  `json:"category"`
	Probability      int       `json:"probability"`
	Impact           Impact    `json:"impact"`
	ResponseStrategy Strategy  `json:"response_strategy"`
	ResponsePlan     string    `json:"response_plan"`
	MitigationPlan   string    `json:"mitigation_plan"`
	Status           Status    `json:"status"`
	Owner            string    `json:"owner,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Score is the probability-weighted impact, in [0, MaxScore].
func (r Risk) Score() float64 {
	p := r.Probability
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(p) / 100 * impactWeight[r.Impact]
}

// Severity is the display badge for the risk's impact. Low and very low
// collapse into the same badge.
func (r Risk) Severity() Severity {
	switch r.Impact {
	case ImpactVeryHigh:
		return SeverityCritical
	case ImpactHigh:
		return SeverityHigh
	case ImpactMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Closed reports whether the risk is no longer tracked.
func (r Risk) Closed() bool {
	return NormalizeStatus(r.Status) == StatusClosed
}

// NormalizeStatus maps legacy status names onto the canonical set. Unknown
// values pass through unchanged so Validate can reject them.
func NormalizeStatus(s Status) Status {
	s = Status(strings.ToLower(strings.TrimSpace(string(s))))
	if mapped, ok := legacyStatus[s]; ok {
		return mapped
	}
	return s
}

// Normalize fills defaults and canonicalises the status.
func (r *Risk) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.SprintID = strings.TrimSpace(r.SprintID)
	r.Status = NormalizeStatus(r.Status)
	if r.Status == "" {
		r.Status = StatusIdentified
	}
	if r.Category == "" {
		r.Category = CategoryTechnical
	}
	if r.Impact == "" {
		r.Impact = ImpactMedium
	}
	if r.ResponseStrategy == "" {
		r.ResponseStrategy = StrategyMitigate
	}
}

// Validate checks enumerations and the probability range.
func (r Risk) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return apperr.Validation("risk title is required")
	}
	if strings.TrimSpace(r.Project) == "" {
		return apperr.Validation("risk project is required")
	}
	if !ValidCategory(r.Category) {
		return apperr.Validation("unknown risk category %q", r.Category)
	}
	if r.Probability < 0 || r.Probability > 100 {
		return apperr.Validation("probability %d out of range 0-100", r.Probability)
	}
	if !ValidImpact(r.Impact) {
		return apperr.Validation("unknown impact %q", r.Impact)
	}
	if !ValidStrategy(r.ResponseStrategy) {
		return apperr.Validation("unknown response strategy %q", r.ResponseStrategy)
	}
	if !ValidStatus(r.Status) {
		return apperr.Validation("unknown risk status %q", r.Status)
	}
	return nil
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryTechnical, CategorySchedule, CategoryCost, CategoryResource, CategoryExternal, CategoryOrganizational:
		return true
	}
	return false
}

func ValidImpact(i Impact) bool {
	_, ok := impactWeight[i]
	return ok
}

func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyAvoid, StrategyMitigate, StrategyTransfer, StrategyAccept:
		return true
	}
	return false
}

// ValidStatus accepts canonical statuses only.
func ValidStatus(s Status) bool {
	switch s {
	case StatusIdentified, StatusAnalyzed, StatusPlanned, StatusMonitored, StatusClosed:
		return true
	}
	return false
}

// Rank orders risks by score descending, open risks before closed ones on
// ties, then by ID. The input is not modified.
func Rank(risks []Risk) []Risk {
	out := make([]Risk, len(risks))
	copy(out, risks)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		ci, cj := out[i].Closed(), out[j].Closed()
		if ci != cj {
			return !ci
		}
		return out[i].ID < out[j].ID
	})
	return out
}
