package hwconf

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"stc/src/index"
)

func newIndexWithVar(v *index.Variable, types ...*index.Type) *index.Index {
	ix := index.New()
	ix.Variables[v.Name] = v
	for _, t := range types {
		ix.Types[strings.ToUpper(t.Name)] = t
	}
	return ix
}

func TestParseHWAddressScalar(t *testing.T) {
	dir, acc, addr, err := parseHWAddress("%QW1")
	if err != nil {
		t.Fatalf("parseHWAddress: %s", err)
	}
	if dir != "Q" || acc != "W" {
		t.Fatalf("got direction=%q access_type=%q, want Q/W", dir, acc)
	}
	if len(addr) != 1 || addr[0] != 1 {
		t.Fatalf("address = %v, want [1]", addr)
	}
}

func TestParseHWAddressMultiField(t *testing.T) {
	dir, acc, addr, err := parseHWAddress("%IX0.1")
	if err != nil {
		t.Fatalf("parseHWAddress: %s", err)
	}
	if dir != "I" || acc != "X" {
		t.Fatalf("got direction=%q access_type=%q, want I/X", dir, acc)
	}
	if len(addr) != 2 || addr[0] != 0 || addr[1] != 1 {
		t.Fatalf("address = %v, want [0 1]", addr)
	}
}

func TestParseHWAddressRejectsUnknownDirection(t *testing.T) {
	if _, _, _, err := parseHWAddress("%ZW1"); err == nil {
		t.Fatal("parseHWAddress: expected error for unknown direction, got nil")
	}
}

func TestBuildMatchesSpecExample(t *testing.T) {
	v := &index.Variable{Name: "a", Simple: "a", TypeRef: "INT", HWAddress: "%QW1"}
	ix := newIndexWithVar(v)

	recs, err := Build(ix)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	want := Record{Name: "a", AccessType: "W", Direction: "Q", Address: []int{1}}
	if !reflect.DeepEqual(recs[0], want) {
		t.Fatalf("got %+v, want %+v", recs[0], want)
	}

	data, err := Emit(recs, FormatJSON)
	if err != nil {
		t.Fatalf("Emit: %s", err)
	}
	var decoded []Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal emitted JSON: %s", err)
	}
	if len(decoded) != 1 || !reflect.DeepEqual(decoded[0], want) {
		t.Fatalf("round-tripped JSON = %+v, want [%+v]", decoded, want)
	}
}

func TestBuildSkipsUnboundVariables(t *testing.T) {
	v := &index.Variable{Name: "plain", Simple: "plain", TypeRef: "INT"}
	ix := newIndexWithVar(v)

	recs, err := Build(ix)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records for an unbound variable, want 0", len(recs))
	}
}

func TestBuildExpandsArrayOfInstances(t *testing.T) {
	arrType := &index.Type{
		Name:    "arr3",
		Kind:    index.KindArray,
		Element: "INT",
		Dims:    []index.ArrayDim{{Lo: 0, Hi: 2}},
	}
	v := &index.Variable{Name: "leds", Simple: "leds", TypeRef: "arr3", HWAddress: "%QB2"}
	ix := newIndexWithVar(v, arrType)

	recs, err := Build(ix)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	names := map[string]bool{}
	for _, r := range recs {
		names[r.Name] = true
		if r.AccessType != "B" || r.Direction != "Q" {
			t.Errorf("record %+v: access_type/direction mismatch", r)
		}
	}
	for _, want := range []string{"leds[0]", "leds[1]", "leds[2]"} {
		if !names[want] {
			t.Errorf("missing expanded record %q, got %v", want, names)
		}
	}
}

func TestEmitTOML(t *testing.T) {
	recs := []Record{{Name: "a", AccessType: "W", Direction: "Q", Address: []int{1}}}
	data, err := Emit(recs, FormatTOML)
	if err != nil {
		t.Fatalf("Emit: %s", err)
	}
	s := string(data)
	for _, want := range []string{"[[binding]]", `name = "a"`, `access_type = "W"`, `direction = "Q"`, "address = [1]"} {
		if !strings.Contains(s, want) {
			t.Errorf("TOML output missing %q, got:\n%s", want, s)
		}
	}
}
