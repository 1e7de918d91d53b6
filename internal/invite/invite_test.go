package invite

import "testing"

func TestNewRoomIDIsValidAndRightLength(t *testing.T) {
	id, err := NewRoomID()
	if err != nil {
		t.Fatalf("NewRoomID: %v", err)
	}
	if len(id) != RoomIDLength {
		t.Fatalf("len = %d, want %d", len(id), RoomIDLength)
	}
	if !Valid(id) {
		t.Fatalf("generated room id %q not valid", id)
	}
}

func TestNewCodeExcludesAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("NewCode: %v", err)
		}
		for _, c := range code {
			switch c {
			case '0', '1', 'I', 'L', 'O':
				t.Fatalf("code %q contains ambiguous character %q", code, c)
			}
		}
	}
}

func TestValidRejectsAmbiguousOrEmpty(t *testing.T) {
	if Valid("") {
		t.Fatal("empty string should be invalid")
	}
	if Valid("O0IL1") {
		t.Fatal("ambiguous characters should be invalid")
	}
	if !Valid("abc234") {
		t.Fatal("lowercase valid characters should be accepted")
	}
}

func TestNormalizeUppercasesAndTrims(t *testing.T) {
	if got := Normalize("  abc234  "); got != "ABC234" {
		t.Fatalf("Normalize = %q, want ABC234", got)
	}
}
