package voice

import "strings"

var digitWords = map[string]byte{
	"zero": '0', "oh": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
}

// magnitudeWords signal a spoken cardinal quantity ("one hundred and
// fifty") rather than digit-by-digit reading ("one two three"); a run
// containing one of these is left as-is.
var magnitudeWords = map[string]bool{
	"hundred": true, "thousand": true, "million": true, "billion": true,
	"ten": true, "eleven": true, "twelve": true, "thirteen": true, "fourteen": true,
	"fifteen": true, "sixteen": true, "seventeen": true, "eighteen": true, "nineteen": true,
	"twenty": true, "thirty": true, "forty": true, "fifty": true, "sixty": true,
	"seventy": true, "eighty": true, "ninety": true, "and": true,
}

// CanonicalizeNumerals converts spoken digit-by-digit sequences ("one two
// three" -> "123") within text, per §4.5: "canonicalise numerals... with
// disambiguation against spoken values like 'one hundred and fifty'."
// Maximal runs of plain single-digit words are joined; a run touching a
// magnitude word is left untouched since it names a quantity, not a
// digit sequence to read back literally.
func CanonicalizeNumerals(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	i := 0
	for i < len(words) {
		run, runLen := collectDigitRun(words, i)
		if runLen >= 2 {
			out = append(out, string(run))
			i += runLen
			continue
		}
		out = append(out, words[i])
		i++
	}
	return strings.Join(out, " ")
}

// collectDigitRun scans forward from i for a maximal run of pure
// single-digit words, aborting (returning runLen 0) if a magnitude word
// appears anywhere before the run ends — the whole phrase is then a
// cardinal quantity, not a sequence to canonicalize.
func collectDigitRun(words []string, i int) ([]byte, int) {
	var digits []byte
	j := i
	for j < len(words) {
		w := strings.ToLower(strings.Trim(words[j], ".,;:!?"))
		if magnitudeWords[w] {
			return nil, 0
		}
		d, ok := digitWords[w]
		if !ok {
			break
		}
		digits = append(digits, d)
		j++
	}
	return digits, j - i
}
