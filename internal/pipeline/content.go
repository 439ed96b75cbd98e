package pipeline

import (
	"context"
	"sync"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// hashURLs fetches every non-empty URL and returns its SHA-256 hex digest.
// URLs that fail to download are left out of the map.
func (r *run) hashURLs(ctx context.Context, urls []string) (map[string]string, error) {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		unique = append(unique, u)
	}

	var mu sync.Mutex
	hashes := make(map[string]string, len(unique))
	errs, err := runBatched(ctx, unique, r.opts.BatchSize, r.opts.BatchDelay, func(ctx context.Context, u string) error {
		data, err := r.images.Fetch(ctx, u)
		if err != nil {
			return err
		}
		fp := fingerprint.NewContentFingerprint("", data)
		mu.Lock()
		hashes[u] = fp.HashHex
		mu.Unlock()
		return nil
	}, nil)
	if err != nil {
		return hashes, err
	}
	for i, e := range errs {
		if e != nil {
			r.p.logger.Warn("content hash failed", "run_id", r.id, "url", unique[i], "error", e)
		}
	}
	return hashes, nil
}

// contentLayer groups byte-identical photos and returns the rest.
func (r *run) contentLayer(ctx context.Context, photos []*photo.Photo) ([]*photo.Photo, error) {
	urls := make([]string, len(photos))
	for i, ph := range photos {
		urls[i] = r.url(ph)
	}

	hashes, err := r.hashURLs(ctx, urls)
	if err != nil {
		return nil, err
	}

	var order []string
	byHash := make(map[string][]*photo.Photo)
	for i, ph := range photos {
		h, ok := hashes[urls[i]]
		if !ok {
			continue
		}
		if _, exists := byHash[h]; !exists {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], ph)
	}

	for _, h := range order {
		members := byHash[h]
		if len(members) < 2 {
			continue
		}
		seed := members[0]
		for _, m := range members[1:] {
			r.matrix.Set(seed.ID, m.ID, similarity.Exact(seed, m, r.p.vocab))
		}
		rep := similarity.Exact(members[0], members[1], r.p.vocab)
		r.addGroup(members, rep, GroupExactDuplicates, 1.0, LayerContent)
	}

	return r.ungrouped(photos), nil
}
