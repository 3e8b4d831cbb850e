// Package datefmt parses dates written with Unicode (ICU) date patterns,
// the format plugins use, by translating them to Go layouts.
package datefmt

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/goodsign/monday"
)

// Layout translates a Unicode date pattern such as "MMM d, yyyy HH:mm"
// into a Go reference layout.
func Layout(pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\'' {
			// '' is a literal quote; otherwise quote to the closing quote.
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						b.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				b.WriteRune(runes[j])
				j++
			}
			if j == len(runes) {
				return "", fmt.Errorf("unterminated quote in pattern %q", pattern)
			}
			i = j + 1
			continue
		}

		if !isPatternLetter(r) {
			b.WriteRune(r)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == r {
			n++
		}
		token, err := translate(r, n)
		if err != nil {
			return "", fmt.Errorf("pattern %q: %w", pattern, err)
		}
		b.WriteString(token)
		i += n
	}

	return b.String(), nil
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func translate(r rune, n int) (string, error) {
	switch r {
	case 'y', 'u', 'Y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M', 'L':
		switch n {
		case 1:
			return "1", nil
		case 2:
			return "01", nil
		case 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		if n == 1 {
			return "2", nil
		}
		return "02", nil
	case 'D':
		return "002", nil
	case 'E', 'e', 'c':
		if n >= 4 {
			return "Monday", nil
		}
		if r != 'E' && n <= 2 {
			return "", fmt.Errorf("numeric weekday %q is not supported", strings.Repeat(string(r), n))
		}
		return "Mon", nil
	case 'H', 'k':
		return "15", nil
	case 'h', 'K':
		if n == 1 {
			return "3", nil
		}
		return "03", nil
	case 'm':
		if n == 1 {
			return "4", nil
		}
		return "04", nil
	case 's':
		if n == 1 {
			return "5", nil
		}
		return "05", nil
	case 'S':
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'z', 'v', 'V':
		return "MST", nil
	case 'Z':
		if n >= 5 {
			return "Z07:00", nil
		}
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "Z07", nil
		case 2, 4:
			return "Z0700", nil
		default:
			return "Z07:00", nil
		}
	case 'x':
		switch n {
		case 1:
			return "-07", nil
		case 2, 4:
			return "-0700", nil
		default:
			return "-07:00", nil
		}
	}
	return "", fmt.Errorf("unsupported pattern letter %q", r)
}

// commonLocales maps bare language codes to the regional locales the
// localized parser knows.
var commonLocales = map[string]string{
	"bg": "bg_BG", "ca": "ca_ES", "cs": "cs_CZ", "da": "da_DK",
	"de": "de_DE", "el": "el_GR", "es": "es_ES", "et": "et_EE",
	"fi": "fi_FI", "fr": "fr_FR", "hu": "hu_HU", "id": "id_ID",
	"it": "it_IT", "ja": "ja_JP", "ko": "ko_KR", "lt": "lt_LT",
	"lv": "lv_LV", "nb": "nb_NO", "nl": "nl_NL", "nn": "nn_NO",
	"pl": "pl_PL", "pt": "pt_PT", "ro": "ro_RO", "ru": "ru_RU",
	"sl": "sl_SI", "sv": "sv_SE", "th": "th_TH", "tr": "tr_TR",
	"uk": "uk_UA", "zh": "zh_CN",
}

// normalizeLocale turns "fr", "fr-FR" or "fr_FR" into "fr_FR". English
// and empty locales return "".
func normalizeLocale(locale string) string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "-", "_")
	if locale == "" || strings.HasPrefix(strings.ToLower(locale), "en") {
		return ""
	}
	parts := strings.Split(locale, "_")
	lang := strings.ToLower(parts[0])
	if len(parts) == 1 {
		if full, ok := commonLocales[lang]; ok {
			return full
		}
		return lang + "_" + strings.ToUpper(lang)
	}
	return lang + "_" + strings.ToUpper(parts[1])
}

// Parse reads value using a Unicode date pattern, an optional locale for
// month and weekday names and an optional IANA time zone. Without a zone
// the value is interpreted as UTC.
func Parse(value, pattern, locale, zone string) (time.Time, error) {
	layout, err := Layout(pattern)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if zone != "" {
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown time zone %q: %w", zone, err)
		}
	}

	value = strings.TrimSpace(value)
	if l := normalizeLocale(locale); l != "" {
		if t, err := monday.ParseInLocation(layout, value, loc, monday.Locale(l)); err == nil {
			return t, nil
		}
	}
	return time.ParseInLocation(layout, value, loc)
}
