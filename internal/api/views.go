package api

import (
	"time"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/storage"
)

// JSON shapes returned by the HTTP API and the MCP tools.

type runView struct {
	ID            int64          `json:"run_id"`
	ParentID      int64          `json:"parent_run_id,omitempty"`
	Status        string         `json:"status"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	TotalFilings  int            `json:"total_filings"`
	TotalSections int            `json:"total_sections"`
	Description   string         `json:"description,omitempty"`
	Error         string         `json:"error,omitempty"`
	Parameters    string         `json:"parameters,omitempty"`
	LastSectionID int64          `json:"last_section_id,omitempty"`
	MatchCounts   map[string]int `json:"match_counts,omitempty"`
}

func newRunView(r storage.Run) runView {
	v := runView{
		ID:            r.ID,
		ParentID:      r.ParentID,
		Status:        string(r.Status),
		StartTime:     r.StartTime,
		TotalFilings:  r.TotalFilings,
		TotalSections: r.TotalSections,
		Description:   r.Description,
		Error:         r.Error,
	}
	if !r.EndTime.IsZero() {
		end := r.EndTime
		v.EndTime = &end
	}
	return v
}

type referenceView struct {
	ID                 string   `json:"reference_id"`
	FilingID           string   `json:"filing_id,omitempty"`
	SectionID          int64    `json:"section_id,omitempty"`
	Category           string   `json:"category"`
	Text               string   `json:"text"`
	Start              int      `json:"start"`
	End                int      `json:"end"`
	BillType           string   `json:"bill_type,omitempty"`
	BillNumber         string   `json:"bill_number,omitempty"`
	Numbers            []string `json:"numbers,omitempty"`
	LawNumber          string   `json:"law_number,omitempty"`
	Title              string   `json:"title,omitempty"`
	Congress           int      `json:"congress,omitempty"`
	CongressSource     string   `json:"congress_source,omitempty"`
	CongressConfidence float64  `json:"congress_confidence,omitempty"`
}

func newReferenceView(r *legis.ExtractedReference) referenceView {
	v := referenceView{
		ID:                 r.ID,
		FilingID:           r.FilingID,
		SectionID:          r.SectionID,
		Category:           string(r.Category),
		Text:               r.FullText,
		Start:              r.Start,
		End:                r.End,
		BillType:           string(r.BillType),
		BillNumber:         r.BillNumber,
		LawNumber:          r.LawNumber,
		Title:              r.Title,
		Congress:           r.Congress,
		CongressSource:     string(r.CongressSource),
		CongressConfidence: r.CongressConfidence,
	}
	if len(r.Numbers) > 1 {
		for _, n := range r.Numbers {
			v.Numbers = append(v.Numbers, n.Number)
		}
	}
	return v
}

type matchView struct {
	Type          string  `json:"match_type"`
	Confidence    float64 `json:"confidence"`
	BillID        string  `json:"bill_id,omitempty"`
	Congress      int     `json:"congress,omitempty"`
	MatchedTitle  string  `json:"matched_title,omitempty"`
	LawNumber     string  `json:"law_number,omitempty"`
	UpdatedBillID string  `json:"updated_bill_id,omitempty"`
	UpdateSource  string  `json:"update_source,omitempty"`
}

func newMatchView(m *legis.MatchResult) *matchView {
	if m == nil {
		return nil
	}
	return &matchView{
		Type:          string(m.Type),
		Confidence:    m.Confidence,
		BillID:        m.BillID,
		Congress:      m.MatchedCongress,
		MatchedTitle:  m.MatchedTitle,
		LawNumber:     m.MatchedLawNumber,
		UpdatedBillID: m.UpdatedBillID,
		UpdateSource:  m.UpdateSource,
	}
}

type referenceMatchView struct {
	Reference referenceView `json:"reference"`
	Match     *matchView    `json:"match,omitempty"`
}

type billView struct {
	BillID         string   `json:"bill_id"`
	Congress       int      `json:"congress"`
	BillType       string   `json:"bill_type"`
	BillNumber     string   `json:"bill_number"`
	Titles         []string `json:"titles,omitempty"`
	OfficialTitles []string `json:"official_titles,omitempty"`
	LawNumber      string   `json:"law_number,omitempty"`
}

func newBillView(b *legis.BillRecord) billView {
	return billView{
		BillID:         b.Key().ID(),
		Congress:       b.Congress,
		BillType:       string(b.Type),
		BillNumber:     b.Number,
		Titles:         b.Titles,
		OfficialTitles: b.OfficialTitles,
		LawNumber:      b.LawNumber,
	}
}

type timeoutView struct {
	FilingID       string    `json:"filing_id"`
	SectionID      int64     `json:"section_id"`
	TextLength     int       `json:"text_length"`
	ProcessingTime float64   `json:"processing_seconds"`
	Error          string    `json:"error"`
	CreatedAt      time.Time `json:"created_at"`
}
