package student

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/somesha/core"
)

// headerMatchRatio is the minimum similarity for a header to match a column alias.
const headerMatchRatio = 0.8

var (
	ErrEmptyFile      = errors.New("the file is empty")
	ErrMissingColumns = errors.New("missing required columns")

	// {column: aliases}; aliases are normalized (lowercase alphanumerics only)
	columnAliases = map[string][]string{
		"name":          {"name", "fullname", "studentname", "student"},
		"email":         {"email", "emailaddress", "mail", "studentemail"},
		"phone":         {"phone", "phonenumber", "mobile", "telephone", "contact"},
		"rollNumber":    {"rollnumber", "rollno", "roll", "admissionnumber", "admissionno", "studentid"},
		"grade":         {"grade", "class", "standard", "form"},
		"guardianName":  {"guardianname", "guardian", "parentname", "parent"},
		"guardianPhone": {"guardianphone", "guardiancontact", "parentphone", "parentcontact"},
	}
	columnOrder     = []string{"name", "email", "phone", "rollNumber", "grade", "guardianName", "guardianPhone"}
	requiredColumns = []string{"name", "email"}
)

// CSVRow is a parsed line of a student import. Line is 1-based and counts the header.
type CSVRow struct {
	Line    int
	Student NewStudent
}

// ParseCSV reads a student roster. The first record is the header: its names are matched
// fuzzily with the known columns ("Full Name", "E-mail", "Roll No"...). Unknown columns and blank lines are ignored.
func ParseCSV(r io.Reader) ([]CSVRow, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, core.NewFieldError("file", ErrEmptyFile)
	} else if err != nil {
		return nil, core.NewFieldError("file", errors.Wrap(err, "reading header"))
	}

	columns := MatchColumns(header)
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, core.NewFieldError("file", errors.Wrap(ErrMissingColumns, strings.Join(missing, ", ")))
	}

	var rows []CSVRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, core.NewFieldError("file", errors.Wrapf(err, "reading line %d", line))
		}
		if isBlank(record) {
			continue
		}

		get := func(col string) string {
			if idx, ok := columns[col]; ok && idx < len(record) {
				return record[idx]
			}
			return ""
		}
		rows = append(rows, CSVRow{
			Line: line,
			Student: NewStudent{
				Name:          get("name"),
				Email:         get("email"),
				Phone:         get("phone"),
				RollNumber:    get("rollNumber"),
				Grade:         get("grade"),
				GuardianName:  get("guardianName"),
				GuardianPhone: get("guardianPhone"),
			},
		})
	}
	return rows, nil
}

// MatchColumns maps known column names to their index in `header`.
// Exact alias matches win over fuzzy ones; each header is used at most once.
func MatchColumns(header []string) map[string]int {
	columns := make(map[string]int)
	used := make(map[int]bool)

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	for _, col := range columnOrder {
		aliases := columnAliases[col]
		for i, h := range normalized {
			if !used[i] && contains(aliases, h) {
				columns[col] = i
				used[i] = true
				break
			}
		}
	}

	for _, col := range columnOrder {
		if _, ok := columns[col]; ok {
			continue
		}
		aliases := columnAliases[col]
		best, bestRatio := -1, headerMatchRatio
		for i, h := range normalized {
			if used[i] || h == "" {
				continue
			}
			for _, alias := range aliases {
				if ratio := similarity(h, alias); ratio >= bestRatio {
					best, bestRatio = i, ratio
				}
			}
		}
		if best >= 0 {
			columns[col] = best
			used[best] = true
		}
	}
	return columns
}

func similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, h)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
