// Package report builds the unified assessment report from a store
// snapshot: executive summary, per-target technical findings, attack
// chains, risk assessment and prioritized recommendations. The report is
// plain data; JSON and PDF renderings are provided alongside.
//
// Generation is best-effort. A target whose chain cannot be planned still
// appears in every other section.
package report
