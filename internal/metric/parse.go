package metric

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CSV parses nvidia-smi style output: one line per device, comma separated
// columns and an optional header line naming the columns.
func CSV(field string, kind Kind, unit Unit) ParseFunc {
	return func(key, raw string, deviceCount int) ([]Value, error) {
		lines := nonBlankLines(raw)

		col := 0
		header := false
		if len(lines) > 0 && isHeader(lines[0], field, kind) {
			header = true
			names := splitCSV(lines[0])
			col = columnIndex(names, field)
			if col < 0 {
				if len(names) != 1 {
					return nil, malformed(key, lines[0])
				}
				col = 0
			}
			lines = lines[1:]
		}

		if len(lines) != deviceCount {
			return nil, countMismatch(key, deviceCount, len(lines))
		}

		values := make([]Value, 0, deviceCount)
		for _, line := range lines {
			cells := splitCSV(line)
			// Without a header the column cannot be located.
			if col >= len(cells) || (!header && len(cells) > 1) {
				return nil, malformed(key, line)
			}

			v, err := coerce(key, cells[col], kind, unit)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}

		return values, nil
	}
}

// Target is the nvidia-settings target type an attribute is read from.
type Target string

const (
	TargetGPU Target = "gpu"
	TargetFan Target = "fan"
)

// KeyValue parses nvidia-settings output for GPU targets.
func KeyValue(name string, kind Kind, unit Unit) ParseFunc {
	return TargetKeyValue(TargetGPU, name, kind, unit)
}

// TargetKeyValue parses nvidia-settings style output. Matches are taken in
// document order from either "name=value" pairs or query lines of the form
// "Attribute 'name' (host:0[target:N]): value." Attribute lines for other
// target types are skipped.
func TargetKeyValue(target Target, name string, kind Kind, unit Unit) ParseFunc {
	marker := "[" + string(target) + ":"
	quoted := regexp.QuoteMeta(name)
	pattern := regexp.MustCompile(
		`Attribute\s+'` + quoted + `'\s+\(([^)]*)\):\s*([^\s,]+)` +
			`|\b` + quoted + `\s*=\s*([^\s,]+)`,
	)

	return func(key, raw string, deviceCount int) ([]Value, error) {
		var tokens []string
		for _, m := range pattern.FindAllStringSubmatch(raw, -1) {
			if m[2] != "" {
				if !strings.Contains(m[1], marker) {
					continue
				}
				tokens = append(tokens, m[2])
				continue
			}
			tokens = append(tokens, m[3])
		}

		if len(tokens) != deviceCount {
			return nil, countMismatch(key, deviceCount, len(tokens))
		}

		values := make([]Value, 0, deviceCount)
		for _, token := range tokens {
			v, err := coerce(key, token, kind, unit)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}

		return values, nil
	}
}

func nonBlankLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

func splitCSV(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}

	return cells
}

// columnIndex finds field in a header row. nvidia-smi appends the unit in
// brackets, e.g. "utilization.gpu [%]".
func columnIndex(header []string, field string) int {
	for i, cell := range header {
		name := cell
		if j := strings.Index(name, " ["); j >= 0 {
			name = name[:j]
		}
		if strings.EqualFold(strings.TrimSpace(name), field) {
			return i
		}
	}

	return -1
}

// isHeader reports whether the first line is a header: it names the field,
// carries a "[unit]" suffix, or the metric is numeric and the first cell is
// neither a number nor a placeholder such as "[N/A]".
func isHeader(line, field string, kind Kind) bool {
	cells := splitCSV(line)
	if columnIndex(cells, field) >= 0 {
		return true
	}
	for _, cell := range cells {
		if strings.Contains(cell, " [") && strings.HasSuffix(cell, "]") {
			return true
		}
	}
	if kind != KindNumber {
		return false
	}

	return !looksLikeValue(cells[0])
}

func looksLikeValue(cell string) bool {
	if _, ok := parseNumber(cell); ok {
		return true
	}
	if strings.HasPrefix(cell, "[") && strings.HasSuffix(cell, "]") {
		return true
	}

	return strings.EqualFold(cell, "N/A")
}

func coerce(key, token string, kind Kind, unit Unit) (Value, error) {
	token = strings.TrimSpace(token)

	if kind == KindText {
		return Text(token), nil
	}

	n, ok := parseNumber(token)
	if !ok {
		return Value{}, malformed(key, token)
	}

	return Number(n, unit), nil
}

// parseNumber reads the leading number of tokens like "45 %", "1024 MiB",
// "65." or "45%".
func parseNumber(token string) (float64, bool) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return 0, false
	}

	num := strings.TrimRight(fields[0], "%")
	num = strings.TrimSuffix(num, ".")

	n, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	return n, true
}
