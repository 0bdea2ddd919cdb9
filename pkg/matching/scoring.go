package matching

import (
	"strings"
	"unicode"
)

// Scorer provides the string comparison algorithms used by rule scoring
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

// Levenshtein returns a similarity score between 0.0 and 1.0 derived from the
// edit distance: 1 - distance/max(len(a), len(b)).
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	score := 1.0 - float64(distance)/float64(maxLen)
	if score < 0 {
		return 0.0
	}
	return score
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Soundex calculates the Soundex encoding of a string
func (s *Scorer) Soundex(str string) string {
	if len(str) == 0 {
		return ""
	}

	str = strings.ToUpper(str)

	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		char := rune(str[i])
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < 4 {
		result += "0"
	}

	return result
}

// SoundexMatch returns 1.0 if Soundex codes match, 0.0 otherwise
func (s *Scorer) SoundexMatch(a, b string) float64 {
	if s.Soundex(a) == s.Soundex(b) {
		return 1.0
	}
	return 0.0
}

// soundexCode returns the Soundex code for a character
func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// Metaphone calculates a simplified Metaphone encoding
func (s *Scorer) Metaphone(str string) string {
	if len(str) == 0 {
		return ""
	}

	str = strings.ToUpper(str)

	var letters strings.Builder
	for _, char := range str {
		if unicode.IsLetter(char) {
			letters.WriteRune(char)
		}
	}
	str = letters.String()

	if len(str) == 0 {
		return ""
	}

	var metaphone strings.Builder
	prevCode := byte(0)

	for i := 0; i < len(str) && metaphone.Len() < 6; i++ {
		char := str[i]
		code := metaphoneCode(char, i, str)

		if code != 0 && code != prevCode {
			metaphone.WriteByte(code)
			prevCode = code
		}
	}

	return metaphone.String()
}

// metaphoneCode returns the Metaphone code for a character
func metaphoneCode(char byte, pos int, word string) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0 // usually silent
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W':
		return 0
	case 'X':
		return 'S'
	case 'Y':
		return 0
	case 'Z':
		return 'S'
	default:
		return 0
	}
}

// MetaphoneMatch returns 1.0 if Metaphone codes match, 0.0 otherwise
func (s *Scorer) MetaphoneMatch(a, b string) float64 {
	if s.Metaphone(a) == s.Metaphone(b) {
		return 1.0
	}
	return 0.0
}

// PhoneticMatch returns 1.0 only when both Soundex and Metaphone encodings
// agree, 0.0 otherwise.
func (s *Scorer) PhoneticMatch(a, b string) float64 {
	if s.SoundexMatch(a, b) == 1.0 && s.MetaphoneMatch(a, b) == 1.0 {
		return 1.0
	}
	return 0.0
}
