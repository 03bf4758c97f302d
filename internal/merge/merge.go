// Package merge folds freshly collected candidates into the record store,
// updating existing records by external key and inserting new ones.
package merge

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospector/internal/model"
)

// Merge applies a candidate onto an existing record and returns the result.
//
// Title, organization and summary always take the candidate value. Email
// and phone are replaced only when the candidate carries one, so a known
// contact channel is never cleared. Remaining descriptive fields are replaced
// when the candidate value is non-empty. Identity, verification and priority
// are left as stored.
func Merge(existing, candidate model.Record, now time.Time) model.Record {
	out := existing

	out.Title = candidate.Title
	out.Organization = candidate.Organization
	out.Summary = candidate.Summary

	if candidate.Email != nil {
		out.Email = candidate.Email
	}
	if candidate.Phone != nil {
		out.Phone = candidate.Phone
	}

	overwrite(&out.Name, candidate.Name)
	overwrite(&out.Location, candidate.Location)
	overwrite(&out.Industry, candidate.Industry)
	overwrite(&out.ConnectionLevel, candidate.ConnectionLevel)
	overwrite(&out.Experience, candidate.Experience)
	overwrite(&out.Education, candidate.Education)
	overwrite(&out.Skills, candidate.Skills)
	overwrite(&out.Source, candidate.Source)

	out.UpdatedAt = now.UTC()
	return out
}

func overwrite(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// NormalizeKey canonicalises a profile URL so cosmetic variants dedup to
// the same key. Scheme and host are lowercased; query, fragment and trailing
// slashes are dropped. Values that are not absolute URLs are only trimmed.
func NormalizeKey(raw string) string {
	s := strings.TrimSpace(norm.NFC.String(raw))
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
