package dto

import "strings"

// Project keeps only the listed fields of each row. Empty only keeps everything.
func Project(rows []map[string]any, only string) []map[string]any {
	fields := splitFields(only)
	if len(fields) == 0 {
		return rows
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		p := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				p[f] = v
			}
		}
		out[i] = p
	}
	return out
}

func splitFields(only string) []string {
	var out []string
	for _, f := range strings.Split(only, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
