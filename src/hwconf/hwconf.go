// Package hwconf implements spec.md §6's "Hardware binding file": for every
// variable declared with a direct/hardware address (`AT %QW1`), emit a
// record describing its access width, I/O direction, and dotted address,
// serialized as either JSON or TOML (the `--hardware-conf {json,toml}`
// flag). There is no teacher analogue — VSL has no hardware-addressed
// storage class at all — so this package is grounded directly on spec.md
// §6's record shape and worked example.
package hwconf

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"stc/src/index"
)

// Format selects the hardware-binding file's serialization, mirroring
// util.HWConfFormat one layer down (src/cmd/stc maps the CLI flag onto
// this package's own enum so hwconf has no dependency on the CLI layer).
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
)

// Record is one hardware-binding entry, field-for-field per spec.md §6:
// `{name, access_type, direction, address}`.
type Record struct {
	Name       string `json:"name"`
	AccessType string `json:"access_type"`
	Direction  string `json:"direction"`
	Address    []int  `json:"address"`
}

// Build collects one Record per hardware-addressed variable in ix, sorted
// by name for deterministic output (spec.md §5's ordering-guarantee spirit
// applied to this side artifact as well, even though the spec doesn't
// mandate an order for it). Arrays of instances expand into one record per
// element, each with the element's index suffix appended to the name, per
// spec.md §6.
func Build(ix *index.Index) ([]Record, error) {
	var out []Record
	for _, v := range ix.Variables {
		if v.HWAddress == "" {
			continue
		}
		dir, acc, addr, err := parseHWAddress(v.HWAddress)
		if err != nil {
			return nil, fmt.Errorf("hwconf: variable %q: %w", v.Name, err)
		}
		recs, err := expandRecords(ix, v, dir, acc, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// expandRecords produces one Record for a scalar hardware-bound variable,
// or one per element (name-suffixed per its flattened index tuple) when
// its declared type is an array of instances.
func expandRecords(ix *index.Index, v *index.Variable, dir, acc string, addr []int) ([]Record, error) {
	t, ok := ix.LookupType(v.TypeRef)
	if !ok || t.Kind != index.KindArray {
		return []Record{{Name: v.Simple, AccessType: acc, Direction: dir, Address: addr}}, nil
	}

	var recs []Record
	var walk func(dimIdx int, suffix []int)
	walk = func(dimIdx int, suffix []int) {
		if dimIdx == len(t.Dims) {
			parts := make([]string, len(suffix))
			for i, idx := range suffix {
				parts[i] = strconv.Itoa(idx)
			}
			name := v.Simple + "[" + strings.Join(parts, ",") + "]"
			recs = append(recs, Record{Name: name, AccessType: acc, Direction: dir, Address: addr})
			return
		}
		dim := t.Dims[dimIdx]
		for i := dim.Lo; i <= dim.Hi; i++ {
			walk(dimIdx+1, append(suffix, int(i)))
		}
	}
	walk(0, nil)
	return recs, nil
}

// parseHWAddress decodes the raw "%QW1.0"-style text lexed by
// frontend.lexHWAddress: a '%', a direction letter (I/Q/M), an access-type
// letter (B/W/D/L/X), then a dot-separated list of integers.
//
// The spec's direction enum also allows 'G' ("global"), but no address
// syntax the lexer accepts ever produces it — the lexer's accepted
// character set for hardware addresses has no 'G' — so 'G' is a reserved
// value for a global-address form this frontend does not parse today, not
// a case this function can reach.
func parseHWAddress(raw string) (direction, accessType string, address []int, err error) {
	s := strings.TrimPrefix(raw, "%")
	if len(s) < 2 {
		return "", "", nil, fmt.Errorf("malformed hardware address %q", raw)
	}

	switch s[0] {
	case 'I', 'Q', 'M':
		direction = string(s[0])
	default:
		return "", "", nil, fmt.Errorf("unsupported direction in hardware address %q", raw)
	}

	switch s[1] {
	case 'B', 'W', 'D', 'L', 'X':
		accessType = string(s[1])
	default:
		return "", "", nil, fmt.Errorf("unsupported access type in hardware address %q", raw)
	}

	rest := s[2:]
	if rest == "" {
		return direction, accessType, nil, nil
	}
	for _, field := range strings.Split(rest, ".") {
		n, convErr := strconv.Atoi(field)
		if convErr != nil {
			return "", "", nil, fmt.Errorf("malformed address field %q in %q", field, raw)
		}
		address = append(address, n)
	}
	return direction, accessType, address, nil
}

// Emit serializes records in format.
func Emit(records []Record, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(records, "", "  ")
	case FormatTOML:
		return writeTOML(records), nil
	default:
		return nil, fmt.Errorf("hwconf: unknown format %d", format)
	}
}

// writeTOML hand-renders records as a TOML array of tables
// (`[[binding]]`). No TOML encoder appears anywhere in the example pack,
// and this record shape is a flat array of flat structs — narrow enough
// that a general-purpose encoder would buy nothing a direct formatter
// doesn't already give; see DESIGN.md.
func writeTOML(records []Record) []byte {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("[[binding]]\n")
		fmt.Fprintf(&b, "name = %q\n", r.Name)
		fmt.Fprintf(&b, "access_type = %q\n", r.AccessType)
		fmt.Fprintf(&b, "direction = %q\n", r.Direction)
		b.WriteString("address = [")
		for i, a := range r.Address {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Itoa(a))
		}
		b.WriteString("]\n\n")
	}
	return []byte(b.String())
}
