package objectstore

import "strings"

// Sanitize strips every character except alphanumerics, '.', '_', '-' and
// space. Keys derived from user-supplied names stay predictable and safe for
// the object store.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ObjectKey builds the deterministic blob key for one file record:
// {ownerID}/{sanitize(ownerID_recordID_name)}.
func ObjectKey(ownerID, recordID, name string) string {
	return ownerID + "/" + Sanitize(ownerID+"_"+recordID+"_"+name)
}
