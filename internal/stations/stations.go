// Package stations holds the closed set of learning stations and their mentor passcodes.
package stations

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Station is one exhibit booth.
type Station struct {
	Name     string
	Passcode string
}

// Set is an immutable, ordered station list. It is safe for concurrent use.
type Set struct {
	list  []Station
	index map[string]int
}

// New validates and indexes the given stations. Names are compared case-insensitively.
func New(list []Station) (*Set, error) {
	if len(list) == 0 {
		return nil, errors.New("stations: empty station list")
	}
	s := &Set{
		list:  make([]Station, 0, len(list)),
		index: make(map[string]int, len(list)),
	}
	for _, st := range list {
		name := normalize(st.Name)
		if name == "" || st.Passcode == "" {
			return nil, fmt.Errorf("stations: station %q needs a name and a passcode", st.Name)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("stations: duplicate station %q", name)
		}
		s.index[name] = len(s.list)
		s.list = append(s.list, Station{Name: name, Passcode: st.Passcode})
	}
	return s, nil
}

// Names returns station names in configured order.
func (s *Set) Names() []string {
	out := make([]string, len(s.list))
	for i, st := range s.list {
		out[i] = st.Name
	}
	return out
}

// Len is the number of stations a learner must visit.
func (s *Set) Len() int { return len(s.list) }

// Contains reports whether name is a configured station.
func (s *Set) Contains(name string) bool {
	_, ok := s.index[normalize(name)]
	return ok
}

// ByPasscode returns the station whose mentor passcode equals passcode.
// Every passcode is compared in constant time.
func (s *Set) ByPasscode(passcode string) (string, bool) {
	passcode = strings.TrimSpace(passcode)
	found := -1
	for i, st := range s.list {
		if subtle.ConstantTimeCompare([]byte(st.Passcode), []byte(passcode)) == 1 {
			found = i
		}
	}
	if found < 0 {
		return "", false
	}
	return s.list[found].Name, true
}

// Title renders a station name for display, e.g. "python" -> "Python".
// Short names such as "ai" or "3d" are shown upper-cased.
func Title(name string) string {
	if len(name) <= 3 {
		return strings.ToUpper(name)
	}
	// Casers keep state between calls, so each call gets its own.
	return cases.Title(language.English).String(name)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
