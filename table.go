package morse

// Unknown is emitted for any mark sequence with no table entry, and when an
// overlong sequence is force-flushed.
const Unknown = "?"

// maxMarks bounds the per-channel symbol buffer. The longest table entry is
// seven marks; one more mark than that can never decode, so the buffer is
// flushed as Unknown before it grows past eight.
const maxMarks = 8

// codeTable maps mark sequences to text.
var codeTable = map[string]string{
	// Letters
	".-": "A", "-...": "B", "-.-.": "C", "-..": "D", ".": "E",
	"..-.": "F", "--.": "G", "....": "H", "..": "I", ".---": "J",
	"-.-": "K", ".-..": "L", "--": "M", "-.": "N", "---": "O",
	".--.": "P", "--.-": "Q", ".-.": "R", "...": "S", "-": "T",
	"..-": "U", "...-": "V", ".--": "W", "-..-": "X", "-.--": "Y",
	"--..": "Z",
	// Digits
	".----": "1", "..---": "2", "...--": "3", "....-": "4", ".....": "5",
	"-....": "6", "--...": "7", "---..": "8", "----.": "9", "-----": "0",
	// Punctuation
	".-.-.-":  ".",
	"--..--":  ",",
	"..--..":  "?",
	"-..-.":   "/",
	"-...-":   "=", // BT
	".-.-.":   "+", // AR
	".--.-.":  "@",
	"-.--.":   "(", // KN
	"-.--.-":  ")",
	"---...":  ":",
	"-.-.-.":  ";",
	".----.":  "'",
	".-..-.":  "\"",
	"-....-":  "-",
	"..--.-":  "_",
	"...-..-": "$",
	"-.-.--":  "!",
	// Prosigns
	"...-.-":  "<SK>", // end of contact
	".-...":   "<AS>", // wait
	"...-.":   "<VE>", // verified
	"-...-.-": "<BK>", // break
}

// textTable is the reverse mapping used by the keyer. Prosigns map from
// their bracketed form.
var textTable = func() map[string]string {
	m := make(map[string]string, len(codeTable))
	for marks, text := range codeTable {
		m[text] = marks
	}
	return m
}()

// Decode translates a mark sequence into text, or Unknown when the
// sequence has no entry.
func Decode(marks string) string {
	if text, ok := codeTable[marks]; ok {
		return text
	}
	return Unknown
}

// Encode translates one character (or bracketed prosign) into its mark
// sequence. The second result is false for characters with no code.
func Encode(text string) (string, bool) {
	marks, ok := textTable[text]
	return marks, ok
}
