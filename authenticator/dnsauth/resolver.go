// Package dnsauth is a reference DV authenticator for the dns challenge:
// it publishes a TXT record through a pluggable zone updater, then
// polls an external resolver until the record has propagated before
// telling the handler the challenge is ready to submit.
package dnsauth

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver queries an external DNS server directly, bypassing the local
// stub resolver, so that propagation checks see what the public
// internet sees rather than a cached answer.
type Resolver struct {
	client  *dns.Client
	servers []string
}

// NewResolver builds a Resolver that queries servers, dialing with the
// given timeout.
func NewResolver(dialTimeout time.Duration, servers []string) *Resolver {
	client := new(dns.Client)
	client.DialTimeout = dialTimeout
	return &Resolver{client: client, servers: servers}
}

// ExchangeOne performs a single DNS exchange with a randomly chosen
// configured server.
func (r *Resolver) ExchangeOne(hostname string, qtype uint16) (*dns.Msg, time.Duration, error) {
	if len(r.servers) < 1 {
		return nil, 0, fmt.Errorf("dnsauth: not configured with at least one DNS server")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(hostname), qtype)
	m.SetEdns0(4096, true)

	server := r.servers[0]
	if len(r.servers) > 1 {
		server = r.servers[rand(len(r.servers))]
	}
	return r.client.Exchange(m, net.JoinHostPort(server, "53"))
}

// LookupTXT returns the joined TXT record values published for
// hostname.
func (r *Resolver) LookupTXT(hostname string) ([]string, error) {
	resp, _, err := r.ExchangeOne(hostname, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dnsauth: DNS failure: %d-%s for TXT query", resp.Rcode, dns.RcodeToString[resp.Rcode])
	}

	var txt []string
	for _, answer := range resp.Answer {
		if rec, ok := answer.(*dns.TXT); ok {
			txt = append(txt, strings.Join(rec.Txt, ""))
		}
	}
	return txt, nil
}

// rand picks a pseudo-random index in [0, n) without pulling in
// math/rand's global state, which is unnecessary for simple server
// rotation.
func rand(n int) int {
	return int(time.Now().UnixNano()) % n
}
