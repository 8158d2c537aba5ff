// Package qname provides qualified names, the universal identifier of every
// dictionary element.
package qname

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvedPrefix is returned when a prefixed name uses a prefix the
// resolver does not know.
var ErrUnresolvedPrefix = errors.New("unresolved namespace prefix")

// ErrInvalid is returned for names that are empty or malformed.
var ErrInvalid = errors.New("invalid qualified name")

// QName is a (namespace URI, local name) pair. Equality is structural.
type QName struct {
	Namespace string
	Local     string
}

// New returns the QName for namespace and local.
func New(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

// URIResolver maps namespace prefixes to URIs.
type URIResolver interface {
	URI(prefix string) (string, bool)
}

// PrefixResolver maps namespace URIs to prefixes.
type PrefixResolver interface {
	Prefix(uri string) (string, bool)
}

// String returns the name in {namespace}local form, or just local if no namespace.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// IsZero returns true if the QName is the zero value.
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

// PrefixString renders the name as prefix:local when r knows the namespace,
// falling back to String.
func (q QName) PrefixString(r PrefixResolver) string {
	if q.Namespace == "" || r == nil {
		return q.String()
	}
	if prefix, ok := r.Prefix(q.Namespace); ok {
		if prefix == "" {
			return q.Local
		}
		return prefix + ":" + q.Local
	}
	return q.String()
}

// Less orders names by namespace then local name.
func Less(a, b QName) bool {
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	return a.Local < b.Local
}

// Compare returns -1, 0 or +1 following Less.
func Compare(a, b QName) int {
	switch {
	case a == b:
		return 0
	case Less(a, b):
		return -1
	default:
		return 1
	}
}

// Parse resolves a name in one of the forms {uri}local, prefix:local or local.
// A bare local name resolves through the empty prefix when r defines one.
func Parse(s string, r URIResolver) (QName, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return QName{}, fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if strings.HasPrefix(name, "{") {
		return ParseClark(name)
	}
	prefix, local, hasPrefix := strings.Cut(name, ":")
	if !hasPrefix {
		prefix, local = "", name
	}
	if local == "" || strings.ContainsAny(local, "{}: ") {
		return QName{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if r == nil {
		if prefix == "" {
			return QName{Local: local}, nil
		}
		return QName{}, fmt.Errorf("%w: %q in %q", ErrUnresolvedPrefix, prefix, s)
	}
	uri, ok := r.URI(prefix)
	if !ok {
		if prefix == "" {
			return QName{Local: local}, nil
		}
		return QName{}, fmt.Errorf("%w: %q in %q", ErrUnresolvedPrefix, prefix, s)
	}
	return QName{Namespace: uri, Local: local}, nil
}

// ParseClark parses the {uri}local form.
func ParseClark(s string) (QName, error) {
	if !strings.HasPrefix(s, "{") {
		if s == "" || strings.ContainsAny(s, "{}") {
			return QName{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 || end == len(s)-1 {
		return QName{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return QName{Namespace: s[1:end], Local: s[end+1:]}, nil
}

// MustParseClark is ParseClark for package-level constants; it panics on error.
func MustParseClark(s string) QName {
	q, err := ParseClark(s)
	if err != nil {
		panic(err)
	}
	return q
}

// MarshalText implements encoding.TextMarshaler using the {uri}local form,
// which also makes QName usable as a JSON map key.
func (q QName) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *QName) UnmarshalText(text []byte) error {
	parsed, err := ParseClark(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
