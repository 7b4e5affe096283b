package source

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeCRLF заменяет все \r\n на \n, не трогая одиночные \r.
// Возвращает новый слайс и флаг: были ли замены (true, если хотя бы одна).
func normalizeCRLF(content []byte) ([]byte, bool) {
	// Быстрый путь: если нет \r, возвращаем как есть.
	if !slices.Contains(content, '\r') {
		return content, false
	}

	out := make([]byte, 0, len(content))
	changed := false

	i := 0
	for i < len(content) {
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			out = append(out, '\n')
			i += 2
			changed = true
		} else {
			out = append(out, content[i])
			i++
		}
	}
	return out, changed
}

func removeBOM(content []byte) ([]byte, bool) {
	if len(content) < 3 {
		return content, false
	}

	if content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:], true
	}

	return content, false
}

// Normalize prepares raw cell text for staging: BOM strip, CRLF to LF,
// NFC normalization for pasted input, and trailing newline trim so line
// counting stays exact.
func Normalize(raw string) string {
	b := []byte(raw)
	b, _ = removeBOM(b)
	b, _ = normalizeCRLF(b)
	// norm пропускает невалидный UTF-8 как есть: компилятор сам отругается.
	return strings.TrimRight(string(norm.NFC.Bytes(b)), "\n")
}

// SplitLines splits normalized text into lines. Empty input yields no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
