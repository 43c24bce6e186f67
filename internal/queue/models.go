package queue

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status represents the automation lifecycle of a queue item.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusLocked     Status = "locked"
)

// Reconciliation notes written to the error column.
const (
	NoteApprovalInProgress = "approval_in_progress"
	NoteAlreadySubmitted   = "already_submitted_cancel_present"
	NoteLockedByOther      = "locked_by_other"
	NoteRetryTimeoutPrefix = "retry_timeout:"
	NoteStaleClaim         = "stale_claim_reclaimed"
)

// MaxErrorLength bounds the stored error/note text in characters.
const MaxErrorLength = 1000

var allStatuses = []Status{
	StatusNew,
	StatusInProgress,
	StatusDone,
	StatusFailed,
	StatusLocked,
}

// AllStatuses returns every lifecycle status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Valid reports whether s is a lifecycle status.
func (s Status) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if s == "in-progress" {
		s = StatusInProgress
	}
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return s, nil
}

// transitions lists the moves the claim protocol and reconciler make.
// Operator overwrites (SetStatus, ResetToNew) are outside this graph.
var transitions = map[Status][]Status{
	StatusNew:        {StatusInProgress},
	StatusInProgress: {StatusDone, StatusFailed, StatusLocked, StatusNew},
}

// CanTransition reports whether from -> to is a move workers make on their own.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no worker will pick the item up again without
// operator intervention.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusLocked
}

// Payload carries the registry attributes the form submitter writes to the
// edit form. The queue never modifies it.
type Payload struct {
	Tahap               string `json:"tahap,omitempty"`
	Proses              string `json:"proses,omitempty"`
	Name                string `json:"nama_usaha,omitempty"`
	CommercialName      string `json:"nama_komersial_usaha,omitempty"`
	Address             string `json:"alamat,omitempty"`
	SLSName             string `json:"nama_sls,omitempty"`
	PostalCode          string `json:"kodepos,omitempty"`
	Phone               string `json:"nomor_telepon,omitempty"`
	WhatsApp            string `json:"nomor_whatsapp,omitempty"`
	Email               string `json:"email,omitempty"`
	Website             string `json:"website,omitempty"`
	Latitude            string `json:"latitude,omitempty"`
	Longitude           string `json:"longitude,omitempty"`
	BusinessStatus      string `json:"status,omitempty"`
	ProvinceCode        string `json:"kdprov,omitempty"`
	RegencyCode         string `json:"kdkab,omitempty"`
	DistrictCode        string `json:"kdkec,omitempty"`
	VillageCode         string `json:"kddesa,omitempty"`
	OwnershipType       string `json:"jenis_kepemilikan_usaha,omitempty"`
	LegalForm           string `json:"bentuk_badan_usaha,omitempty"`
	LegalFormOther      string `json:"deskripsi_badan_usaha_lainnya,omitempty"`
	FoundedYear         string `json:"tahun_berdiri,omitempty"`
	BusinessNetwork     string `json:"jaringan_usaha,omitempty"`
	InstitutionalSector string `json:"sektor_institusi,omitempty"`
	ActivityDescription string `json:"deskripsi_kegiatan_usaha,omitempty"`
	Category            string `json:"kategori,omitempty"`
	KBLI                string `json:"kbli,omitempty"`
	MainProduct         string `json:"produk_usaha,omitempty"`
	ProfilingSource     string `json:"sumber_profiling,omitempty"`
	ProfilingNote       string `json:"catatan_profiling,omitempty"`
}

// PayloadColumns lists the payload column names in storage order.
var PayloadColumns = []string{
	"tahap", "proses", "nama_usaha", "nama_komersial_usaha", "alamat", "nama_sls", "kodepos",
	"nomor_telepon", "nomor_whatsapp", "email", "website", "latitude", "longitude", "status",
	"kdprov", "kdkab", "kdkec", "kddesa", "jenis_kepemilikan_usaha", "bentuk_badan_usaha",
	"deskripsi_badan_usaha_lainnya", "tahun_berdiri", "jaringan_usaha", "sektor_institusi",
	"deskripsi_kegiatan_usaha", "kategori", "kbli", "produk_usaha", "sumber_profiling", "catatan_profiling",
}

// Fields returns pointers to the payload fields in PayloadColumns order so
// backends can scan and bind without repeating the column list.
func (p *Payload) Fields() []*string {
	return []*string{
		&p.Tahap, &p.Proses, &p.Name, &p.CommercialName, &p.Address, &p.SLSName, &p.PostalCode,
		&p.Phone, &p.WhatsApp, &p.Email, &p.Website, &p.Latitude, &p.Longitude, &p.BusinessStatus,
		&p.ProvinceCode, &p.RegencyCode, &p.DistrictCode, &p.VillageCode, &p.OwnershipType, &p.LegalForm,
		&p.LegalFormOther, &p.FoundedYear, &p.BusinessNetwork, &p.InstitutionalSector,
		&p.ActivityDescription, &p.Category, &p.KBLI, &p.MainProduct, &p.ProfilingSource, &p.ProfilingNote,
	}
}

// WorkItem is one row of the shared queue.
type WorkItem struct {
	ID           int64
	BusinessKey  string
	Status       Status
	AssignedTo   string
	AttemptCount int
	FirstTakenAt *time.Time
	LastUpdated  time.Time
	Error        string
	Payload      Payload
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Statuses   []Status
	AssignedTo string
	Limit      int
}

// Truncate limits text to MaxErrorLength characters without splitting runes.
func Truncate(text string) string {
	return TruncateTo(text, MaxErrorLength)
}

// TruncateTo limits text to n characters without splitting runes.
func TruncateTo(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
