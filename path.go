package symjit

import (
	"sort"
	"strconv"
	"strings"
)

// PathKey is one segment of a Path: either an integer subscript (dense
// vector or sparse integer map index) or a string subscript (sparse string
// map key).
type PathKey struct {
	isString bool
	i        int
	s        string
}

// IntKey builds an integer path segment, e.g. the `3` in x["weights"][3].
func IntKey(i int) PathKey { return PathKey{i: i} }

// StrKey builds a string path segment, e.g. the `"weights"` in x["weights"][3].
func StrKey(s string) PathKey { return PathKey{isString: true, s: s} }

// IsString reports whether this segment is a string key.
func (k PathKey) IsString() bool { return k.isString }

// Int returns the integer value of an integer segment; behavior is
// undefined if IsString() is true.
func (k PathKey) Int() int { return k.i }

// Str returns the string value of a string segment; behavior is undefined
// if IsString() is false.
func (k PathKey) Str() string { return k.s }

func (k PathKey) String() string {
	if k.isString {
		return "['" + k.s + "']"
	}
	return "[" + strconv.Itoa(k.i) + "]"
}

// Path addresses a leaf or interior node inside a VarNamespace by a chain
// of subscripts.
type Path []PathKey

// P is a convenience constructor: P("weights", 3) == Path{StrKey("weights"), IntKey(3)}.
// Arguments must be int or string.
func P(segments ...interface{}) Path {
	p := make(Path, len(segments))
	for i, s := range segments {
		switch v := s.(type) {
		case int:
			p[i] = IntKey(v)
		case string:
			p[i] = StrKey(v)
		default:
			panic("symjit: path segment must be int or string")
		}
	}
	return p
}

// String reconstructs the fully-qualified display name for the path, e.g.
// `x['weights'][3]`.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("x")
	for _, k := range p {
		b.WriteString(k.String())
	}
	return b.String()
}

// compare orders two paths lexicographically, integer keys compared
// numerically and string keys compared as byte strings, matching the
// VarConfig freeze ordering rule.
func (p Path) compare(other Path) int {
	n := len(p)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := p[i].compare(other[i]); c != 0 {
			return c
		}
	}
	return len(p) - len(other)
}

func (k PathKey) compare(other PathKey) int {
	if k.isString != other.isString {
		// Shouldn't happen within one sibling set (variant is fixed on
		// first use), but define a stable order anyway: integers before
		// strings.
		if k.isString {
			return 1
		}
		return -1
	}
	if k.isString {
		return strings.Compare(k.s, other.s)
	}
	if k.i == other.i {
		return 0
	}
	if k.i < other.i {
		return -1
	}
	return 1
}

// sortPaths sorts a slice of paths using the freeze ordering rule.
func sortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].compare(paths[j]) < 0
	})
}
