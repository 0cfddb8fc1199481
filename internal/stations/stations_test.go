package stations

import "testing"

func testSet(t *testing.T) *Set {
	t.Helper()
	s, err := New([]Station{
		{Name: "Python", Passcode: "L3ARN5TAT10N_PYTHON"},
		{Name: "web", Passcode: "L3ARN5TAT10N_WEB"},
		{Name: "ai", Passcode: "L3ARN5TAT10N_AI"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSetLookup(t *testing.T) {
	s := testSet(t)
	if s.Len() != 3 {
		t.Fatalf("Len = %d", s.Len())
	}
	if names := s.Names(); names[0] != "python" || names[2] != "ai" {
		t.Fatalf("Names = %v", names)
	}
	if !s.Contains("PYTHON") || s.Contains("iot") {
		t.Fatalf("Contains mismatch")
	}
	if st, ok := s.ByPasscode(" L3ARN5TAT10N_WEB "); !ok || st != "web" {
		t.Fatalf("ByPasscode = %q, %v", st, ok)
	}
	if _, ok := s.ByPasscode("l3arn5tat10n_web"); ok {
		t.Fatalf("passcodes are case-sensitive")
	}
	if _, ok := s.ByPasscode(""); ok {
		t.Fatalf("empty passcode must not match")
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("empty list must fail")
	}
	if _, err := New([]Station{{Name: "a", Passcode: "x"}, {Name: "A", Passcode: "y"}}); err == nil {
		t.Fatalf("duplicate must fail")
	}
	if _, err := New([]Station{{Name: "a"}}); err == nil {
		t.Fatalf("missing passcode must fail")
	}
}

func TestTitle(t *testing.T) {
	cases := map[string]string{"python": "Python", "ai": "AI", "3d": "3D", "blockchain": "Blockchain", "pcb": "PCB"}
	for in, want := range cases {
		if got := Title(in); got != want {
			t.Fatalf("Title(%q) = %q, want %q", in, got, want)
		}
	}
}
