package navigation

import (
	"errors"
	"strings"
)

var ErrInvalidPath = errors.New("invalid navigation path")

// Location is a position in the route tree, e.g. /(school)/Dashboard is
// ["(school)", "Dashboard"]. The entry screen has no segments.
type Location struct {
	Segments []string
}

func ParseLocation(path string) (Location, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Location{}, ErrInvalidPath
	}

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		switch seg {
		case "", ".":
			continue
		case "..":
			return Location{}, ErrInvalidPath
		}
		segments = append(segments, seg)
	}
	return Location{Segments: segments}, nil
}

// MustParse is for route constants known to be valid.
func MustParse(path string) Location {
	loc, err := ParseLocation(path)
	if err != nil {
		panic(err)
	}
	return loc
}

func (l Location) Path() string {
	return "/" + strings.Join(l.Segments, "/")
}

// Area is the route group the location sits in, without parentheses, or ""
// when the first segment is not a group.
func (l Location) Area() string {
	if len(l.Segments) == 0 {
		return ""
	}
	first := l.Segments[0]
	if len(first) > 2 && strings.HasPrefix(first, "(") && strings.HasSuffix(first, ")") {
		return first[1 : len(first)-1]
	}
	return ""
}

func (l Location) Equal(other Location) bool {
	return l.Path() == other.Path()
}
