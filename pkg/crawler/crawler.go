// Package crawler performs the breadth-first traversal of the administrative
// hierarchy: each level is expanded from the set of parent codes collected at
// the previous level, starting from a single empty-string root.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

// Fetcher retrieves the children of one parent code at a given level. It is
// satisfied by *bps.Client; tests supply fakes.
type Fetcher interface {
	FetchWilayah(ctx context.Context, level wilayah.Level, parent string) ([]map[string]any, error)
}

// Options controls a crawl run.
type Options struct {
	// Levels to traverse, already validated and in canonical order.
	Levels []wilayah.Level
	// Workers bounds the number of concurrent fetches within one level.
	Workers int
	// Delay is the politeness pause between levels. Not correctness-critical.
	Delay time.Duration
	// DryRun forces sequential fetching so URL previews stay ordered.
	DryRun bool
}

// Crawl fetches every requested level and returns the collected records keyed
// by level. Any single parent's exhausted-retries failure aborts the whole
// crawl; there is no partial-level continuation.
//
// Dedup is per (level, kode_bps): a code seen twice at the same level is
// recorded once. Province ancestry is inherited transitively; when a parent's
// province is unrecorded (possible when the requested levels do not start at
// provinsi) the raw parent code is used as the province instead.
func Crawl(ctx context.Context, fetcher Fetcher, opts Options) (map[wilayah.Level][]wilayah.Record, error) {
	collected := make(map[wilayah.Level][]wilayah.Record, len(opts.Levels))
	seen := make(map[wilayah.Level]map[string]struct{}, len(opts.Levels))
	for _, level := range opts.Levels {
		collected[level] = nil
		seen[level] = make(map[string]struct{})
	}
	provinceLookup := make(map[string]string)

	parents := []string{""}
	for idx, level := range opts.Levels {
		results, err := fetchLevel(ctx, fetcher, level, parents, opts)
		if err != nil {
			return nil, err
		}

		var nextParents []string
		// Merge in the parents' original order regardless of fetch
		// completion order so output is deterministic.
		for _, parent := range parents {
			for _, item := range results[parent] {
				kode := stringField(item, "kode_bps")
				if kode == "" || kode == "0" {
					slog.Debug("skipping record with empty kode_bps", "level", level, "parent", parent)
					continue
				}
				if _, dup := seen[level][kode]; dup {
					slog.Debug("skipping duplicate record", "level", level, "kode_bps", kode)
					continue
				}
				seen[level][kode] = struct{}{}

				record := wilayah.Record{
					Level:         level,
					KodeBPS:       kode,
					NamaBPS:       stringField(item, "nama_bps"),
					KodeDagri:     stringField(item, "kode_dagri"),
					NamaDagri:     stringField(item, "nama_dagri"),
					ParentKodeBPS: parent,
				}
				if idx == 0 {
					provinceLookup[kode] = kode
					record.ProvinceKodeBPS = kode
				} else {
					province, ok := provinceLookup[parent]
					if !ok {
						province = parent
					}
					record.ProvinceKodeBPS = province
					provinceLookup[kode] = province
				}

				collected[level] = append(collected[level], record)
				if idx+1 < len(opts.Levels) {
					nextParents = append(nextParents, kode)
				}
			}
		}

		parents = nextParents
		if idx+1 < len(opts.Levels) {
			if err := pause(ctx, opts.Delay); err != nil {
				return nil, err
			}
		}
	}
	return collected, nil
}

// fetchLevel gathers payloads for every parent of one level. Sequential in
// dry-run mode or when there is only the root parent; otherwise fans out
// across a bounded worker pool. Workers never share mutable state beyond the
// mutex-guarded result map; each failure is wrapped with level and parent
// context before aborting the group.
func fetchLevel(ctx context.Context, fetcher Fetcher, level wilayah.Level, parents []string, opts Options) (map[string][]map[string]any, error) {
	results := make(map[string][]map[string]any, len(parents))

	if opts.DryRun || len(parents) <= 1 {
		for _, parent := range parents {
			payload, err := fetcher.FetchWilayah(ctx, level, parent)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to fetch level=%s parent=%q", level, parent)
			}
			results[parent] = payload
		}
		return results, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, parent := range parents {
		parent := parent
		g.Go(func() error {
			payload, err := fetcher.FetchWilayah(gctx, level, parent)
			if err != nil {
				return errors.Wrapf(err, "failed to fetch level=%s parent=%q", level, parent)
			}
			mu.Lock()
			results[parent] = payload
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// stringField coerces a loosely typed payload value to a trimmed string.
// Numeric codes occasionally arrive as JSON numbers; json.Number keeps them
// free of float formatting artifacts.
func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
