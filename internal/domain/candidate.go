package domain

import "time"

// Candidate is the person being assessed. Facts about the candidate are
// owned by the calling system; the engine treats them as read-only input.
type Candidate struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name,omitempty"`
	Locale   string `json:"locale,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CandidateFacts is the structural input to the eligibility gate:
// held certificates, accumulated experience and prior behavior scores.
type CandidateFacts struct {
	CandidateID string `json:"candidateId"`

	Certificates []Certificate `json:"certificates"`

	// ExperienceMonths maps a category (vessel type key or rank code) to
	// accumulated whole months. When absent for a required category the
	// sea-service history is consulted; if that is also unavailable the
	// gate records data_missing rather than a failure.
	ExperienceMonths map[string]int `json:"experienceMonths,omitempty"`

	// PriorScores holds previous normalized competency scores (0.0-1.0)
	// keyed by competency code.
	PriorScores map[string]float64 `json:"priorScores,omitempty"`

	// Availability is a 0.0-1.0 fit for the posting window, supplied by
	// the caller (1.0 = immediately available).
	Availability *float64 `json:"availability,omitempty"`
}

// Certificate is a held certificate or endorsement with its validity.
type Certificate struct {
	Type      string    `json:"type"`
	Number    string    `json:"number,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Find returns the certificate of the given type, if held.
func (f *CandidateFacts) Find(certType string) (Certificate, bool) {
	for _, c := range f.Certificates {
		if c.Type == certType {
			return c, true
		}
	}
	return Certificate{}, false
}

// ServiceRecord is one contract of sea service, used to compute
// accumulated experience months per vessel type and rank.
type ServiceRecord struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	CandidateID string `json:"candidateId"`

	VesselTypeKey string `json:"vesselTypeKey"`
	RankCode      string `json:"rankCode"`
	VesselName    string `json:"vesselName,omitempty"`

	SignOn  time.Time `json:"signOn"`
	SignOff time.Time `json:"signOff"`
}

// MonthsBetween returns the whole months from one time to another,
// floored. Negative when to precedes from.
func MonthsBetween(from, to time.Time) int {
	m := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if from.AddDate(0, m, 0).After(to) {
		m--
	}
	return m
}

// Answer is a candidate's response to one question: either a pre-scored
// rubric level or free text for the classifier-backed judge.
type Answer struct {
	QuestionID string `json:"questionId"`

	// Level is the pre-scored rubric level when the answer was judged
	// upstream. Nil means Text must be interpreted.
	Level *int `json:"level,omitempty"`

	Text   string `json:"text,omitempty"`
	Locale string `json:"locale,omitempty"`
}
