package legis

import "testing"

func TestYearToCongress(t *testing.T) {
	tests := []struct {
		year int
		want int
	}{
		{2001, 107},
		{2002, 107},
		{2017, 115},
		{2018, 115},
		{2019, 116},
		{1789, 1},
	}
	for _, tt := range tests {
		if got := YearToCongress(tt.year); got != tt.want {
			t.Errorf("YearToCongress(%d) = %d, want %d", tt.year, got, tt.want)
		}
	}
}

func TestStandardizeBillType(t *testing.T) {
	tests := []struct {
		chamber, res, leg string
		want              BillType
	}{
		{"H.R.", "", "", HR},
		{"House", "", "Bill", HR},
		{"H.", "", "Res.", HRes},
		{"H.", "Con.", "Res.", HConRes},
		{"House", "Joint", "Resolution", HJRes},
		{"S.", "", "", S},
		{"Senate", "", "Resolution", SRes},
		{"S.", "C.", "R.", SConRes},
		{"Sen.", "J.", "Res.", SJRes},
		{"", "", "", ""},
		{"X", "", "", ""},
	}
	for _, tt := range tests {
		got := StandardizeBillType(tt.chamber, tt.res, tt.leg)
		if got != tt.want {
			t.Errorf("StandardizeBillType(%q, %q, %q) = %q, want %q", tt.chamber, tt.res, tt.leg, got, tt.want)
		}
	}
}

func TestStandardizeLawNumber(t *testing.T) {
	tests := map[string]string{
		"Public Law 115-232": "PL115-232",
		"P.L. 115-232":       "PL115-232",
		"PL 94-142":          "PL94-142",
		"Pub. - 101-336":     "PL101-336",
		"Private Law 110-1":  "PL110-1",
	}
	for in, want := range tests {
		if got := StandardizeLawNumber(in); got != want {
			t.Errorf("StandardizeLawNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBillRecordKeyIgnoresTitles(t *testing.T) {
	a := BillRecord{Congress: 115, Type: HR, Number: "1625", Titles: []string{"A"}}
	b := BillRecord{Congress: 115, Type: HR, Number: "1625", OfficialTitles: []string{"B", "C"}}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %v vs %v", a.Key(), b.Key())
	}
	if got := a.Key().ID(); got != "hr1625-115" {
		t.Errorf("ID() = %q, want %q", got, "hr1625-115")
	}
}

func TestReferenceConstructors(t *testing.T) {
	ref, err := NewBillReference(HR, "1234", "")
	if err != nil {
		t.Fatalf("NewBillReference: %v", err)
	}
	if ref.Category != CategoryBillNumber {
		t.Errorf("Category = %q, want %q", ref.Category, CategoryBillNumber)
	}

	ref, err = NewBillReference(HR, "1234", "Clean Water Act")
	if err != nil {
		t.Fatalf("NewBillReference: %v", err)
	}
	if ref.Category != CategoryBillWithTitle {
		t.Errorf("Category = %q, want %q", ref.Category, CategoryBillWithTitle)
	}

	if _, err := NewBillReference("hx", "1", ""); err == nil {
		t.Error("expected error for invalid bill type")
	}
	if _, err := NewLawReference("115-232", ""); err == nil {
		t.Error("expected error for non-canonical law number")
	}
	if _, err := NewTitleReference("  "); err == nil {
		t.Error("expected error for blank title")
	}
}

func TestUnmatchedAndDuplicateCarryNoBillID(t *testing.T) {
	ref := &ExtractedReference{ID: "r1", Category: CategoryBillNumber, BillType: HR, BillNumber: "1"}
	bill := &BillRecord{Congress: 116, Type: HR, Number: "1", Titles: []string{"For the People Act"}}

	m := NewMatch(ref, bill, HighConfidence, 0.95, "For the People Act")
	if m.BillID != "hr1-116" {
		t.Fatalf("BillID = %q, want %q", m.BillID, "hr1-116")
	}
	m.MarkDuplicate()
	if m.BillID != "" {
		t.Errorf("duplicate BillID = %q, want empty", m.BillID)
	}

	u := NewUnmatched(ref)
	if u.BillID != "" || u.Type != Unmatched {
		t.Errorf("unmatched = %+v", u)
	}
}

func TestParseBillType(t *testing.T) {
	tests := []struct {
		in   string
		want BillType
	}{
		{"HR", HR},
		{"H.R.", HR},
		{"h res", HRes},
		{"S.J.Res.", SJRes},
		{"s", S},
	}
	for _, tt := range tests {
		if got := ParseBillType(tt.in); got != tt.want {
			t.Errorf("ParseBillType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if ParseBillType("bogus").Valid() {
		t.Error("bogus parsed as a valid bill type")
	}
}
