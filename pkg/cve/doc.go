// Package cve binds (service, version) observations to CVE records.
//
// A Correlator expands the service name into known aliases, queries a
// Lookup collaborator for each alias concurrently, searches an
// ExploitLookup collaborator for every returned CVE and upserts one
// Correlation per (target, port, CVE). Lookup errors are absorbed: they
// are logged, published as lookup.failed events and treated as empty
// results for that query only.
package cve
