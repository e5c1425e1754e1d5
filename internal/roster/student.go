package roster

import "time"

// Student is one roster entry. RollNumber doubles as the QR payload, so it is
// unique among active students; RFIDTag is an optional alternate scan identity.
type Student struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RollNumber    string     `json:"roll_number"`
	ClassName     string     `json:"class_name,omitempty"`
	ParentContact string     `json:"parent_contact,omitempty"`
	RFIDTag       string     `json:"rfid_tag,omitempty"`
	PhotoURL      string     `json:"photo_url,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Band is the coarse grade grouping that selects the checkout on-time boundary.
type Band int

const (
	// BandUpper covers grade 3 and above.
	BandUpper Band = iota
	// BandLower covers grades 1 and 2, which leave school earlier.
	BandLower
)

// GradeBand derives the band from the class label. Labels for grades 1 and 2
// start with "1" or "2" in this school's naming scheme ("1A", "2B", ...).
func (s Student) GradeBand() Band {
	if len(s.ClassName) > 0 && (s.ClassName[0] == '1' || s.ClassName[0] == '2') {
		return BandLower
	}
	return BandUpper
}
