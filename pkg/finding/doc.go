// Package finding provides the shared observation types used across the
// intelligence engine: findings, their typed details, severities and
// discovered credentials.
//
// Tool adapters speak in loose key/value payloads. Decode turns such a
// payload into a typed Detail exactly once at ingestion so the correlator,
// planner and reporter never re-parse strings:
//
//	detail, err := finding.Decode(finding.KindNetworkService, map[string]string{
//	    "port": "22", "service": "SSH",
//	})
//	svc := detail.(finding.NetworkService)
package finding
