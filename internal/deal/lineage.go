package deal

import (
	"strconv"
	"strings"
)

// Label is a "major.minor" version label.
type Label struct {
	Major int
	Minor int
}

// ParseLabel accepts exactly two dot-separated unsigned integers.
func ParseLabel(version string) (Label, error) {
	majorRaw, minorRaw, ok := strings.Cut(version, ".")
	if !ok {
		return Label{}, invalidVersion(version)
	}
	major, err := parseComponent(majorRaw)
	if err != nil {
		return Label{}, invalidVersion(version)
	}
	minor, err := parseComponent(minorRaw)
	if err != nil {
		return Label{}, invalidVersion(version)
	}
	return Label{Major: major, Minor: minor}, nil
}

func parseComponent(raw string) (int, error) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(raw)
}

func invalidVersion(version string) error {
	return Validation("Invalid version format: %s", version)
}

// Score orders labels: majors dominate, minors break ties.
func (l Label) Score() int64 {
	return int64(l.Major)*100000 + int64(l.Minor)
}

func (l Label) Next() Label {
	return Label{Major: l.Major, Minor: l.Minor + 1}
}

func (l Label) String() string {
	return strconv.Itoa(l.Major) + "." + strconv.Itoa(l.Minor)
}

// NextVersion picks the highest scoring label of a lineage and bumps its
// minor component. Any malformed member fails the whole call.
func NextVersion(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", NotFound("Cannot create next version for unknown property")
	}

	var best Label
	for i, v := range versions {
		label, err := ParseLabel(v)
		if err != nil {
			return "", err
		}
		if i == 0 || label.Score() > best.Score() {
			best = label
		}
	}
	return best.Next().String(), nil
}
