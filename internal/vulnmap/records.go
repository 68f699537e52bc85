package vulnmap

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/mod/semver"
)

// Record is one advisory flattened to a single affected package: advisory ID,
// the package it hits, the affected version ranges, and optionally the
// vulnerable symbols. No symbol list means the whole package is suspect.
type Record struct {
	ID        string         `json:"id"`
	Summary   string         `json:"summary,omitempty"`
	Ecosystem string         `json:"ecosystem"`
	Package   string         `json:"package"`
	Ranges    []VersionRange `json:"ranges,omitempty"`
	Versions  []string       `json:"versions,omitempty"`
	Symbols   []string       `json:"symbols,omitempty"`
}

// VersionRange is a half-open interval: Introduced inclusive, Fixed
// exclusive. LastAffected closes the interval inclusively when no fix
// exists.
type VersionRange struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

// osvRecord mirrors the subset of the OSV schema the loader consumes.
type osvRecord struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Affected []struct {
		Package struct {
			Ecosystem string `json:"ecosystem"`
			Name      string `json:"name"`
		} `json:"package"`
		Ranges []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced   string `json:"introduced"`
				Fixed        string `json:"fixed"`
				LastAffected string `json:"last_affected"`
			} `json:"events"`
		} `json:"ranges"`
		Versions          []string `json:"versions"`
		EcosystemSpecific struct {
			Symbols []string `json:"symbols"`
		} `json:"ecosystem_specific"`
	} `json:"affected"`
}

// LoadRecords reads a JSON array of OSV records and flattens each affected
// package into its own Record.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vulnerability records: %w", err)
	}
	return decodeRecords(data)
}

func decodeRecords(data []byte) ([]Record, error) {
	var raw []osvRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vulnerability records: %w", err)
	}

	var recs []Record
	for _, osv := range raw {
		for _, aff := range osv.Affected {
			rec := Record{
				ID:        osv.ID,
				Summary:   osv.Summary,
				Ecosystem: aff.Package.Ecosystem,
				Package:   aff.Package.Name,
				Versions:  aff.Versions,
				Symbols:   aff.EcosystemSpecific.Symbols,
			}
			for _, r := range aff.Ranges {
				vr := VersionRange{}
				for _, e := range r.Events {
					if e.Introduced != "" {
						// A new introduced event opens a new interval.
						if vr.Introduced != "" || vr.Fixed != "" || vr.LastAffected != "" {
							rec.Ranges = append(rec.Ranges, vr)
							vr = VersionRange{}
						}
						vr.Introduced = e.Introduced
					}
					if e.Fixed != "" {
						vr.Fixed = e.Fixed
					}
					if e.LastAffected != "" {
						vr.LastAffected = e.LastAffected
					}
				}
				if vr != (VersionRange{}) {
					rec.Ranges = append(rec.Ranges, vr)
				}
			}
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// Affects reports whether the record covers the given package version. An
// unknown version is treated as affected: claiming safety without evidence
// is the one wrong answer.
func (r Record) Affects(version string) bool {
	if version == "" {
		return true
	}
	for _, v := range r.Versions {
		if compareVersions(v, version) == 0 {
			return true
		}
	}
	for _, vr := range r.Ranges {
		if vr.contains(version) {
			return true
		}
	}
	return len(r.Versions) == 0 && len(r.Ranges) == 0
}

func (vr VersionRange) contains(version string) bool {
	if vr.Introduced != "" && vr.Introduced != "0" {
		if compareVersions(version, vr.Introduced) < 0 {
			return false
		}
	}
	if vr.Fixed != "" {
		return compareVersions(version, vr.Fixed) < 0
	}
	if vr.LastAffected != "" {
		return compareVersions(version, vr.LastAffected) <= 0
	}
	return true
}

// compareVersions compares semver-ish versions via x/mod/semver and falls
// back to lexical comparison for schemes it cannot parse.
func compareVersions(a, b string) int {
	va, vb := "v"+a, "v"+b
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
