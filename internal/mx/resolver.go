// Package mx resolves a domain to its priority-ordered mail exchange
// hosts.
package mx

import (
	"context"
	"net"
	"sort"
	"strings"
)

// Record is one MX entry: a hostname and its preference (lower wins).
type Record struct {
	Exchange string
	Priority uint16
}

// Resolver looks up MX records for a domain. The empty slice (never
// an error) signals "no mail route" to the Verifier — NXDOMAIN, no MX
// records, and network failure are all folded into the same empty
// result.
type Resolver interface {
	Resolve(ctx context.Context, domain string) []Record
}

// NetResolver is the production Resolver, backed by the platform
// resolver via net.Resolver.LookupMX.
type NetResolver struct {
	Resolver *net.Resolver
}

// NewNetResolver returns a NetResolver using net.DefaultResolver.
func NewNetResolver() *NetResolver {
	return &NetResolver{Resolver: net.DefaultResolver}
}

func (r *NetResolver) Resolve(ctx context.Context, domain string) []Record {
	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	mxs, err := resolver.LookupMX(ctx, domain)
	if err != nil || len(mxs) == 0 {
		return nil
	}

	records := make([]Record, 0, len(mxs))
	for _, mx := range mxs {
		host := strings.TrimSuffix(mx.Host, ".")
		if strings.TrimSpace(host) == "" {
			continue
		}
		records = append(records, Record{Exchange: host, Priority: mx.Pref})
	}
	if len(records) == 0 {
		return nil
	}

	SortByPriority(records)
	return records
}

// SortByPriority orders records ascending by priority in place. Ties
// keep their relative input order: this is a stable sort, not a total
// order.
func SortByPriority(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})
}
