package morse

import "testing"

func TestDecodeKnownSequences(t *testing.T) {
	tests := []struct {
		marks string
		want  string
	}{
		{".-", "A"},
		{"...", "S"},
		{"---", "O"},
		{".----", "1"},
		{"-----", "0"},
		{".-.-.-", "."},
		{"..--..", "?"},
		{"-...-", "="},
		{"...-.-", "<SK>"},
		{".-...", "<AS>"},
		{"-...-.-", "<BK>"},
	}

	for _, tt := range tests {
		if got := Decode(tt.marks); got != tt.want {
			t.Errorf("Decode(%q) = %q, want %q", tt.marks, got, tt.want)
		}
	}
}

func TestDecodeUnknownSequences(t *testing.T) {
	for _, marks := range []string{"", ".-.-.-.-", "--------", "x"} {
		if got := Decode(marks); got != Unknown {
			t.Errorf("Decode(%q) = %q, want %q", marks, got, Unknown)
		}
	}
}

func TestEncodeInvertsDecode(t *testing.T) {
	for marks, text := range codeTable {
		got, ok := Encode(text)
		if !ok {
			t.Errorf("Encode(%q): no entry, want %q", text, marks)
			continue
		}
		if got != marks {
			t.Errorf("Encode(%q) = %q, want %q", text, got, marks)
		}
	}
}

func TestEncodeRejectsUncodedText(t *testing.T) {
	for _, text := range []string{"%", "~", "", "AB", "<XX>"} {
		if marks, ok := Encode(text); ok {
			t.Errorf("Encode(%q) = %q, want no entry", text, marks)
		}
	}
}

// The longest table entry must fit the symbol buffer with room for one
// more mark, otherwise valid sequences would be force-flushed.
func TestLongestSequenceFitsBuffer(t *testing.T) {
	longest := 0
	for marks := range codeTable {
		if len(marks) > longest {
			longest = len(marks)
		}
	}
	if longest >= maxMarks {
		t.Errorf("longest table sequence is %d marks, buffer cap is %d", longest, maxMarks)
	}
}
