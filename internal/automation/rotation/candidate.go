package rotation

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Candidate is one source video as reported by a provider. Providers fill the
// identifier fields they know; none of them is guaranteed stable across calls.
type Candidate struct {
	GUID       string     `json:"guid,omitempty"`
	ObjectName string     `json:"object_name,omitempty"`
	RemotePath string     `json:"remote_path,omitempty"`
	Path       string     `json:"path,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	Name       string     `json:"name,omitempty"`
	Title      string     `json:"title,omitempty"`
	Size       int64      `json:"size,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	// DownloadURL is set by providers that download over plain HTTP.
	DownloadURL string `json:"download_url,omitempty"`
}

// IdentifierAliases lists every identifier the candidate may be known by:
// GUID, ObjectName, RemotePath, Path, Filename, Name, each trimmed as-is and
// lower-cased, without duplicates or empties.
func IdentifierAliases(c Candidate) []string {
	fields := []string{c.GUID, c.ObjectName, c.RemotePath, c.Path, c.Filename, c.Name}
	seen := make(map[string]struct{}, len(fields)*2)
	out := make([]string, 0, len(fields)*2)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f)
		add(raw)
		add(strings.ToLower(raw))
	}
	return out
}

// PrimaryIdentifier is the first alias, or a hash of the whole candidate when
// it carries no identifier at all.
func PrimaryIdentifier(c Candidate) string {
	if aliases := IdentifierAliases(c); len(aliases) > 0 {
		return aliases[0]
	}
	raw, _ := json.Marshal(c)
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Fingerprint is sha1(lower(path-like field) + "|" + size). It is empty when
// there is neither a path-like field nor a positive size.
func Fingerprint(c Candidate) string {
	base := ""
	for _, f := range []string{c.RemotePath, c.Path, c.ObjectName, c.Filename, c.Name, c.GUID} {
		if v := strings.TrimSpace(f); v != "" {
			base = strings.ToLower(v)
			break
		}
	}
	if base == "" && c.Size <= 0 {
		return ""
	}
	sum := sha1.Sum([]byte(base + "|" + strconv.FormatInt(c.Size, 10)))
	return hex.EncodeToString(sum[:])
}

// DisplayName picks the most human readable label.
func DisplayName(c Candidate) string {
	for _, f := range []string{c.Title, c.Filename, c.Name, c.ObjectName, c.GUID} {
		if v := strings.TrimSpace(f); v != "" {
			return v
		}
	}
	return PrimaryIdentifier(c)
}

func sortKey(c Candidate) string {
	for _, f := range []string{c.Filename, c.ObjectName, c.Title, c.Name, c.GUID} {
		if v := strings.TrimSpace(f); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// SortByUpload orders candidates oldest first; candidates without an upload
// time go last. Ties break on the lower-cased name.
func SortByUpload(in []Candidate) {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i].UploadedAt, in[j].UploadedAt
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return sortKey(in[i]) < sortKey(in[j])
	})
}
