package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LocationCode is the integer encoding of a monitored location.
type LocationCode int

// Location is one row of the encoding table.
type Location struct {
	Name    string       `json:"name"`
	Code    LocationCode `json:"code"`
	Aliases []string     `json:"aliases,omitempty"`
}

// LocationTable is the versioned, bijective name↔code encoding. It is built
// once at startup and never mutated.
type LocationTable struct {
	version string
	byCode  map[LocationCode]Location
	byKey   map[string]LocationCode // normalized name or alias
	ordered []Location
}

type locationTableFile struct {
	Version   string     `json:"version"`
	Locations []Location `json:"locations"`
}

// ParseLocationTable decodes a JSON encoding table.
func ParseLocationTable(data []byte) (*LocationTable, error) {
	var f locationTableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse location table: %w", err)
	}
	return NewLocationTable(f.Version, f.Locations)
}

// NewLocationTable validates the rows and builds lookup indexes. Duplicate
// names, duplicate codes, and aliases that collide with another location are
// rejected.
func NewLocationTable(version string, locations []Location) (*LocationTable, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("location table %q is empty", version)
	}

	t := &LocationTable{
		version: version,
		byCode:  make(map[LocationCode]Location, len(locations)),
		byKey:   make(map[string]LocationCode, len(locations)*3),
	}

	for _, loc := range locations {
		if strings.TrimSpace(loc.Name) == "" {
			return nil, fmt.Errorf("location table %q: empty name for code %d", version, loc.Code)
		}
		if prev, ok := t.byCode[loc.Code]; ok {
			return nil, fmt.Errorf("location table %q: code %d used by %q and %q", version, loc.Code, prev.Name, loc.Name)
		}
		t.byCode[loc.Code] = loc

		for _, key := range append([]string{loc.Name}, loc.Aliases...) {
			k := normalizeLocationKey(key)
			if other, ok := t.byKey[k]; ok && other != loc.Code {
				return nil, fmt.Errorf("location table %q: %q maps to codes %d and %d", version, key, other, loc.Code)
			}
			t.byKey[k] = loc.Code
		}
		t.ordered = append(t.ordered, loc)
	}

	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].Code < t.ordered[j].Code })
	return t, nil
}

// Version returns the encoding table version.
func (t *LocationTable) Version() string { return t.version }

// Code resolves a location name or alias, case-insensitively.
func (t *LocationTable) Code(name string) (LocationCode, error) {
	code, ok := t.byKey[normalizeLocationKey(name)]
	if !ok {
		return 0, &UnknownLocationError{Location: name}
	}
	return code, nil
}

// Name returns the canonical name for a code.
func (t *LocationTable) Name(code LocationCode) (string, error) {
	loc, ok := t.byCode[code]
	if !ok {
		return "", &UnknownLocationError{Location: strconv.Itoa(int(code))}
	}
	return loc.Name, nil
}

// Contains reports whether code is in the table.
func (t *LocationTable) Contains(code LocationCode) bool {
	_, ok := t.byCode[code]
	return ok
}

// Codes returns every supported code in ascending order.
func (t *LocationTable) Codes() []LocationCode {
	codes := make([]LocationCode, len(t.ordered))
	for i, loc := range t.ordered {
		codes[i] = loc.Code
	}
	return codes
}

// Names returns every canonical name in code order.
func (t *LocationTable) Names() []string {
	names := make([]string, len(t.ordered))
	for i, loc := range t.ordered {
		names[i] = loc.Name
	}
	return names
}

// Resolve maps names to codes, returning the first unknown name as an
// *UnknownLocationError. An empty input selects every location.
func (t *LocationTable) Resolve(names []string) ([]LocationCode, error) {
	if len(names) == 0 {
		return t.Codes(), nil
	}
	codes := make([]LocationCode, 0, len(names))
	for _, n := range names {
		code, err := t.Code(n)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func normalizeLocationKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
