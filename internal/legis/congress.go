package legis

import (
	"strconv"
	"strings"
)

// YearToCongress converts a calendar year to its congress number.
// The 107th Congress spans 2001-2002.
func YearToCongress(year int) int {
	return (year-1789)/2 + 1
}

// BillID formats a bill identifier such as "hr1625-115".
func BillID(t BillType, number string, congress int) string {
	return string(t) + number + "-" + strconv.Itoa(congress)
}

// StandardizeBillType maps the chamber, resolution kind, and legislation kind
// captured from a citation to a bill type. It returns "" for combinations
// that do not name a bill type.
func StandardizeBillType(chamber, resType, legType string) BillType {
	chamber = strings.ToLower(strings.TrimSpace(chamber))
	resType = strings.ToLower(strings.TrimSpace(resType))
	legType = strings.ToLower(strings.TrimSpace(legType))
	if chamber == "" {
		return ""
	}

	var house bool
	switch chamber[0] {
	case 'h':
		house = true
	case 's':
		house = false
	default:
		return ""
	}

	switch {
	case resType == "":
		switch {
		case legType == "" || legType[0] == 'b':
			if house {
				return HR
			}
			return S
		case legType[0] == 'r':
			if house {
				return HRes
			}
			return SRes
		}
	case resType[0] == 'c':
		if house {
			return HConRes
		}
		return SConRes
	case resType[0] == 'j':
		if house {
			return HJRes
		}
		return SJRes
	}
	return ""
}

// ParseBillType accepts "HR", "H.R.", "h res" and similar spellings of a
// bill type code. The result may not be Valid.
func ParseBillType(s string) BillType {
	s = strings.ToLower(s)
	s = strings.NewReplacer(".", "", " ", "").Replace(s)
	return BillType(s)
}

// StandardizeLawNumber reduces a law citation to "PL" followed by its digits
// and hyphens: "Public Law 115-232" becomes "PL115-232".
func StandardizeLawNumber(text string) string {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return "PL" + strings.Trim(b.String(), "-")
}
