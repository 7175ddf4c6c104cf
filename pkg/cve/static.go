package cve

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/waftester/intelcore/pkg/jsonutil"
)

// FeedEntry is one CVE record in a static feed. An empty Version matches
// every version of the product.
type FeedEntry struct {
	Product string `json:"product"`
	Version string `json:"version,omitempty"`
	Record  `json:",inline"`
}

// Feed is the on-disk layout read by LoadFeed.
type Feed struct {
	CVEs     []FeedEntry          `json:"cves"`
	Exploits map[string][]Exploit `json:"exploits,omitempty"`
}

// StaticLookup answers CVE and exploit queries from an in-memory feed.
// It is safe for concurrent use once built.
type StaticLookup struct {
	feed Feed
}

// NewStaticLookup serves queries from feed.
func NewStaticLookup(feed Feed) *StaticLookup {
	return &StaticLookup{feed: feed}
}

// LoadFeed reads a JSON feed from path.
func LoadFeed(path string) (*StaticLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cve: read feed: %w", err)
	}
	var feed Feed
	if err := jsonutil.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("cve: parse feed %s: %w", path, err)
	}
	return NewStaticLookup(feed), nil
}

// Lookup returns records whose product matches service, ignoring case.
func (s *StaticLookup) Lookup(ctx context.Context, service, version string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range s.feed.CVEs {
		if !strings.EqualFold(e.Product, service) {
			continue
		}
		if e.Version != "" && e.Version != version {
			continue
		}
		out = append(out, e.Record)
	}
	return out, nil
}

// SearchExploits returns the exploits listed for cveID.
func (s *StaticLookup) SearchExploits(ctx context.Context, cveID string) ([]Exploit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Exploit(nil), s.feed.Exploits[cveID]...), nil
}
