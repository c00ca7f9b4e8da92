package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/config"
)

var tableHeaderRe = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*$`)

func setBatchModeInConfigFile(path, mode string) (bool, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != config.BatchAtomic && mode != config.BatchWorkflow {
		return false, fmt.Errorf("invalid batch mode %q (want %q or %q)", mode, config.BatchAtomic, config.BatchWorkflow)
	}
	return rewriteConfigFile(path, "batch", "mode", mode)
}

func setSprintLengthInConfigFile(path, length string) (bool, error) {
	length = strings.TrimSpace(length)
	d, err := time.ParseDuration(length)
	if err != nil {
		return false, fmt.Errorf("invalid sprint length %q: %w", length, err)
	}
	if d < 24*time.Hour {
		return false, fmt.Errorf("sprint length %s must be at least one day", d)
	}
	return rewriteConfigFile(path, "sprint", "default_length", length)
}

func rewriteConfigFile(path, table, key, value string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read config %s: %w", path, err)
	}

	updated, changed, err := setStringInConfigContent(string(raw), table, key, value)
	if err != nil {
		return false, fmt.Errorf("update [%s] %s in %s: %w", table, key, path, err)
	}
	if !changed {
		return false, nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return false, fmt.Errorf("write config %s: %w", path, err)
	}
	return true, nil
}

// setStringInConfigContent sets key = "value" inside [table], leaving every
// other line as written. A missing key is added under the table header and a
// missing table is appended.
func setStringInConfigContent(input, table, key, value string) (output string, changed bool, err error) {
	if strings.TrimSpace(input) == "" {
		return input, false, fmt.Errorf("config content is empty")
	}
	assignRe, err := regexp.Compile(`^(\s*` + regexp.QuoteMeta(key) + `\s*=\s*")([^"]*)(".*)$`)
	if err != nil {
		return input, false, err
	}

	lines := strings.Split(input, "\n")
	currentTable := ""
	headerAt := -1
	found := false

	for i, line := range lines {
		if header, ok := parseTableHeader(line); ok {
			currentTable = strings.ToLower(strings.TrimSpace(header))
			if currentTable == table {
				headerAt = i
			}
			continue
		}
		if currentTable != table {
			continue
		}
		m := assignRe.FindStringSubmatch(line)
		if len(m) != 4 {
			continue
		}
		found = true
		updated := m[1] + value + m[3]
		if updated != line {
			lines[i] = updated
			changed = true
		}
	}

	assignment := fmt.Sprintf("%s = %q", key, value)
	switch {
	case found:
	case headerAt >= 0:
		lines = append(lines[:headerAt+1], append([]string{assignment}, lines[headerAt+1:]...)...)
		changed = true
	default:
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "", "["+table+"]", assignment)
		changed = true
	}

	output = strings.Join(lines, "\n")
	if strings.HasSuffix(input, "\n") && !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return output, changed, nil
}

func parseTableHeader(line string) (string, bool) {
	m := tableHeaderRe.FindStringSubmatch(line)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}
