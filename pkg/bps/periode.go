package bps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// periodeKeys are checked in priority order when a catalogue entry is an
// object rather than a bare string.
var periodeKeys = []string{"periode", "periode_merge", "value", "kode", "kode_periode"}

// wrapperKeys are the envelope keys some catalogue responses nest their list
// under.
var wrapperKeys = []string{"data", "rows", "items", "result"}

// ExtractPeriodes normalizes a periode catalogue payload into an ordered list
// of periode strings. Supported shapes:
//
//   - a bare array of strings
//   - an array of objects carrying one of the prioritized periode keys
//   - an object wrapping such an array under data/rows/items/result
//   - a bare object, whose values are scanned in sorted-key order
//
// Values are trimmed, empties dropped, and duplicates removed while
// preserving first-seen order. The first entry is assumed to be the most
// recent periode.
func ExtractPeriodes(payload any) []string {
	if wrapper, ok := payload.(map[string]any); ok {
		unwrapped := false
		for _, key := range wrapperKeys {
			if child, ok := wrapper[key].([]any); ok {
				payload = child
				unwrapped = true
				break
			}
		}
		if !unwrapped {
			keys := make([]string, 0, len(wrapper))
			for key := range wrapper {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			values := make([]any, 0, len(keys))
			for _, key := range keys {
				values = append(values, wrapper[key])
			}
			payload = values
		}
	}

	items, ok := payload.([]any)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{}, len(items))
	var ordered []string
	for _, item := range items {
		value := derivePeriode(item)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		ordered = append(ordered, value)
	}
	return ordered
}

func derivePeriode(item any) string {
	switch v := item.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range periodeKeys {
			if s, ok := v[key].(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// SelectPeriode resolves the periode to use for a run. An explicit value
// passes through untouched; an empty value or "latest" triggers catalogue
// discovery and picks the first (most recent) entry. An empty catalogue is a
// terminal error. In dry-run mode discovery is skipped and the placeholder
// "latest" is returned so URL previews stay readable.
func SelectPeriode(ctx context.Context, client *Client, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value != "" && !strings.EqualFold(value, "latest") {
		return value, nil
	}
	if client.DryRun() {
		fmt.Fprintln(client.dryRunOut, "DRY-RUN: skipping periode discovery; using placeholder 'latest'")
		return "latest", nil
	}
	payload, err := client.FetchPeriodes(ctx)
	if err != nil {
		return "", err
	}
	periodes := ExtractPeriodes(payload)
	if len(periodes) == 0 {
		return "", errors.New("no periode values returned; cannot continue")
	}
	slog.Debug("auto-selected latest periode", "periode", periodes[0])
	return periodes[0], nil
}
