package internal

import "fmt"

// CharacterRune validates that a configured replacement character is a
// single rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSORED_CHAR must be a single character, got %q", str)
	}
	return r[0], nil
}
