package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/billmatch/internal/legis"
)

func onlyRef(t *testing.T, refs []legis.ExtractedReference) legis.ExtractedReference {
	t.Helper()
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1: %+v", len(refs), refs)
	}
	return refs[0]
}

func TestExtract_BillNumber(t *testing.T) {
	for _, text := range []string{
		"Support H.R. 1234 in committee",
		"H.R.1234",
		"Lobbied on HR 1234.",
	} {
		ref := onlyRef(t, Extract(text, 2018))
		if ref.BillType != legis.HR || ref.BillNumber != "1234" {
			t.Errorf("%q: got %s %s, want hr 1234", text, ref.BillType, ref.BillNumber)
		}
		if ref.Category != legis.CategoryBillNumber {
			t.Errorf("%q: Category = %q, want %q", text, ref.Category, legis.CategoryBillNumber)
		}
		if ref.ID == "" {
			t.Errorf("%q: reference has no id", text)
		}
	}
}

func TestExtract_BillTypes(t *testing.T) {
	tests := []struct {
		text string
		want legis.BillType
	}{
		{"S. 5", legis.S},
		{"H. Res. 12", legis.HRes},
		{"H. Con. Res. 12", legis.HConRes},
		{"S.J. Res. 3", legis.SJRes},
		{"Senate Bill 44", legis.S},
		{"House Joint Resolution 7", legis.HJRes},
	}
	for _, tt := range tests {
		ref := onlyRef(t, Extract(tt.text, 2018))
		if ref.BillType != tt.want {
			t.Errorf("%q: BillType = %q, want %q", tt.text, ref.BillType, tt.want)
		}
	}
}

func TestExtract_IgnoresAbbreviationTails(t *testing.T) {
	refs := Extract("Exports of U.S. 5 million tons", 2018)
	if len(refs) != 0 {
		t.Errorf("got %d references, want 0: %+v", len(refs), refs)
	}
}

func TestExtract_LawNumber(t *testing.T) {
	for _, text := range []string{
		"Implementation of Public Law 115-232.",
		"P.L. 115-232",
		"Pub. L. 115-232",
	} {
		ref := onlyRef(t, Extract(text, 2018))
		if ref.LawNumber != "PL115-232" {
			t.Errorf("%q: LawNumber = %q, want %q", text, ref.LawNumber, "PL115-232")
		}
		if ref.Category != legis.CategoryLawNumber {
			t.Errorf("%q: Category = %q, want %q", text, ref.Category, legis.CategoryLawNumber)
		}
	}
}

func TestExtract_TitleAfterCitation(t *testing.T) {
	ref := onlyRef(t, Extract("H.R. 1625, the Consolidated Appropriations Act", 2018))
	if ref.Title != "Consolidated Appropriations Act" {
		t.Errorf("Title = %q, want %q", ref.Title, "Consolidated Appropriations Act")
	}
	if ref.Category != legis.CategoryBillWithTitle {
		t.Errorf("Category = %q, want %q", ref.Category, legis.CategoryBillWithTitle)
	}
	if ref.Congress != 115 || ref.CongressSource != legis.SourceFilingYear || ref.CongressConfidence != 0.7 {
		t.Errorf("congress = %d/%s/%v, want 115/filing_year/0.7", ref.Congress, ref.CongressSource, ref.CongressConfidence)
	}
}

func TestExtract_TitleBeforeCitation(t *testing.T) {
	ref := onlyRef(t, Extract("Supported the Clean Water Act (H.R. 5) this quarter", 2018))
	if ref.Title != "Clean Water Act" {
		t.Errorf("Title = %q, want %q", ref.Title, "Clean Water Act")
	}
	if ref.BillNumber != "5" {
		t.Errorf("BillNumber = %q, want %q", ref.BillNumber, "5")
	}
}

func TestExtract_Range(t *testing.T) {
	ref := onlyRef(t, Extract("H.R. 100-102", 2018))
	if len(ref.Numbers) != 3 {
		t.Fatalf("got %d numbers, want 3: %+v", len(ref.Numbers), ref.Numbers)
	}
	if !ref.Numbers[0].IsRangeStart || ref.Numbers[0].Number != "100" {
		t.Errorf("first = %+v, want range start 100", ref.Numbers[0])
	}
	if !ref.Numbers[2].IsRangeEnd || ref.Numbers[2].Number != "102" {
		t.Errorf("last = %+v, want range end 102", ref.Numbers[2])
	}
	if ref.BillNumber != "100" {
		t.Errorf("BillNumber = %q, want %q", ref.BillNumber, "100")
	}
}

func TestExpandRange_Oversized(t *testing.T) {
	got := expandRange("10", "500")
	if len(got) != 2 || got[0].Number != "10" || got[1].Number != "500" {
		t.Errorf("expandRange(10, 500) = %+v, want endpoints only", got)
	}
	got = expandRange("9", "3")
	if len(got) != 2 || !got[0].IsRangeStart || !got[1].IsRangeEnd {
		t.Errorf("expandRange(9, 3) = %+v, want endpoints only", got)
	}
}

func TestExtract_CompanionGroupSharesTitle(t *testing.T) {
	refs := Extract("H.R. 1 and S. 1, the For the People Act", 2019)
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.Title != "For the People Act" {
			t.Errorf("%s%s: Title = %q, want %q", ref.BillType, ref.BillNumber, ref.Title, "For the People Act")
		}
	}
	if refs[0].BillType != legis.HR || refs[1].BillType != legis.S {
		t.Errorf("types = %s, %s, want hr, s", refs[0].BillType, refs[1].BillType)
	}
}

func TestExtract_TitleAfterUndottedCitation(t *testing.T) {
	tests := []struct {
		text   string
		typ    legis.BillType
		number string
		title  string
	}{
		{"HR 1 Tax Cuts and Jobs Act", legis.HR, "1", "Tax Cuts and Jobs Act"},
		{"HR 1, Tax Cuts and Jobs Act", legis.HR, "1", "Tax Cuts and Jobs Act"},
		{"S 2155 Economic Growth Act", legis.S, "2155", "Economic Growth Act"},
	}
	for _, tt := range tests {
		ref := onlyRef(t, Extract(tt.text, 2018))
		if ref.BillType != tt.typ || ref.BillNumber != tt.number {
			t.Errorf("%q: got %s %s, want %s %s", tt.text, ref.BillType, ref.BillNumber, tt.typ, tt.number)
		}
		if ref.Title != tt.title || ref.Category != legis.CategoryBillWithTitle {
			t.Errorf("%q: title = %q (%s), want %q", tt.text, ref.Title, ref.Category, tt.title)
		}
	}
}

func TestExtract_UndottedCompanionsShareTitle(t *testing.T) {
	refs := Extract("HR 1 and S 2 Tax Cuts and Jobs Act", 2018)
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.Title != "Tax Cuts and Jobs Act" {
			t.Errorf("%s%s: Title = %q, want %q", ref.BillType, ref.BillNumber, ref.Title, "Tax Cuts and Jobs Act")
		}
	}
}

func TestExtract_TrailingTitleKeptForCombining(t *testing.T) {
	for _, text := range []string{
		"H.R. 1 / S. 2 / Farm Bill",
		"H.R. 1 & S. 2 & Farm Bill",
		"H.R. 1 and S. 2 and the Farm Bill",
	} {
		refs := Extract(text, 2018)
		if len(refs) != 3 {
			t.Errorf("%q: got %d references, want 3: %+v", text, len(refs), refs)
			continue
		}
		last := refs[2]
		if last.Category != legis.CategoryTitleOnly || last.Title != "Farm Bill" {
			t.Errorf("%q: last reference = %s %q, want title-only Farm Bill", text, last.Category, last.Title)
		}
		if refs[0].Category != legis.CategoryBillNumber || refs[1].Category != legis.CategoryBillNumber {
			t.Errorf("%q: categories = %s, %s, want bare bill numbers", text, refs[0].Category, refs[1].Category)
		}
	}
}

func TestExtract_DistantTitleNearCitationDropped(t *testing.T) {
	refs := Extract("H.R. 1 was discussed at length with staff. Farm Bill", 2018)
	if len(refs) != 1 || refs[0].BillNumber != "1" {
		t.Errorf("got %+v, want only H.R. 1", refs)
	}
}

func TestExtract_StandaloneTitle(t *testing.T) {
	ref := onlyRef(t, Extract("Issues related to the Farm Bill", 2018))
	if ref.Category != legis.CategoryTitleOnly {
		t.Errorf("Category = %q, want %q", ref.Category, legis.CategoryTitleOnly)
	}
	if ref.Title != "Farm Bill" {
		t.Errorf("Title = %q, want %q", ref.Title, "Farm Bill")
	}
}

func TestExtract_NestedTitleIsOneReference(t *testing.T) {
	ref := onlyRef(t, Extract("Lobbied on the Further Continuing Appropriations Act Amendments Act", 2018))
	want := "Further Continuing Appropriations Act Amendments Act"
	if ref.Title != want {
		t.Errorf("Title = %q, want %q", ref.Title, want)
	}
}

func TestExtract_ConjoinedTitlesStaySeparate(t *testing.T) {
	refs := Extract("Issues: Clean Water Act and the Clean Air Act", 2018)
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2: %+v", len(refs), refs)
	}
	if refs[0].Title != "Clean Water Act" || refs[1].Title != "Clean Air Act" {
		t.Errorf("titles = %q, %q", refs[0].Title, refs[1].Title)
	}
}

func TestExtract_CommitteeIsNotATitle(t *testing.T) {
	refs := Extract("Met with Senate Appropriations Committee staff", 2018)
	if len(refs) != 0 {
		t.Errorf("got %d references, want 0: %+v", len(refs), refs)
	}
}

func TestExtract_CongressDetection(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		year       int
		wantNumber string
		want       int
		source     legis.CongressSource
	}{
		{"explicit in sentence", "In the 114th Congress, S. 10 passed.", 2018, "10", 114, legis.SourceExplicit},
		{"explicit out of window", "The 101st Congress saw S. 10 pass.", 2018, "10", 115, legis.SourceFilingYear},
		{"explicit in another sentence", "S. 10 was introduced. In the 114th Congress it stalled.", 2018, "10", 115, legis.SourceFilingYear},
		{"year in title", "H.R. 244, the Consolidated Appropriations Act, 2017", 2018, "244", 115, legis.SourceYear},
		{"fiscal year in title", "H.R. 3, the FY19 Defense Authorization Act", 2020, "3", 116, legis.SourceYear},
		{"year outside window", "H.R. 3, the Clean Air Act of 1990", 2018, "3", 115, legis.SourceFilingYear},
		{"century phrase", "H.R. 34, the 21st Century Cures Act of 2016", 2016, "34", 114, legis.SourceFilingYear},
		{"fallback", "S. 5", 2020, "5", 116, legis.SourceFilingYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := onlyRef(t, Extract(tt.text, tt.year))
			if ref.BillNumber != tt.wantNumber {
				t.Fatalf("BillNumber = %q, want %q", ref.BillNumber, tt.wantNumber)
			}
			if ref.Congress != tt.want || ref.CongressSource != tt.source {
				t.Errorf("congress = %d/%s, want %d/%s", ref.Congress, ref.CongressSource, tt.want, tt.source)
			}
			if ref.CongressConfidence != tt.source.Confidence() {
				t.Errorf("CongressConfidence = %v, want %v", ref.CongressConfidence, tt.source.Confidence())
			}
		})
	}
}

func TestExtractSection_StampsIDs(t *testing.T) {
	e := New()
	sec := legis.FilingSection{FilingID: "f-1", SectionID: 42, Text: "H.R. 1 and H.R. 2", FilingYear: 2019}
	refs, err := e.ExtractSection(context.Background(), sec)
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}
	if refs[0].ID == refs[1].ID {
		t.Errorf("ids are not unique: %q", refs[0].ID)
	}
	for _, r := range refs {
		if r.FilingID != "f-1" || r.SectionID != 42 {
			t.Errorf("ref = %s/%d, want f-1/42", r.FilingID, r.SectionID)
		}
	}
}

func TestExtractContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ExtractContext(ctx, "H.R. 1", 2019)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtract_EmptyText(t *testing.T) {
	if refs := Extract("", 2018); len(refs) != 0 {
		t.Errorf("got %d references, want 0", len(refs))
	}
}
