package scenario

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxCallbackKeyLen = 60

// deaccent strips combining marks so accented Latin letters fold to ASCII.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// cyrillicToLatin transliterates lower-case Cyrillic letters. Button labels
// are commonly Russian; normalized keys must stay ASCII.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// NormalizeCallbackKey folds a callback button label into a stable lookup
// key: accents and emoji stripped, Cyrillic transliterated, lower-cased,
// whitespace runs collapsed to "_", truncated to 60 characters.
func NormalizeCallbackKey(s string) string {
	folded, _, err := transform.String(deaccent, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsSpace(r):
			if b.Len() > 0 {
				pendingSep = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		default:
			if lat, ok := cyrillicToLatin[r]; ok {
				if pendingSep {
					b.WriteByte('_')
					pendingSep = false
				}
				b.WriteString(lat)
			}
			// Emoji and punctuation are dropped.
		}
	}

	key := b.String()
	if len(key) > maxCallbackKeyLen {
		key = key[:maxCallbackKeyLen]
	}
	return strings.Trim(key, "_")
}
