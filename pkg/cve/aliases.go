package cve

import (
	"slices"
	"strings"
)

// defaultAliases maps a lowercased service name to the product names CVE
// feeds publish it under.
var defaultAliases = map[string][]string{
	"apache":     {"Apache HTTP Server", "httpd"},
	"httpd":      {"Apache HTTP Server"},
	"nginx":      {"nginx", "F5 NGINX"},
	"iis":        {"Microsoft IIS", "Internet Information Services"},
	"tomcat":     {"Apache Tomcat"},
	"ssh":        {"OpenSSH"},
	"openssh":    {"OpenSSH", "ssh"},
	"ftp":        {"vsftpd", "ProFTPD"},
	"vsftpd":     {"vsftpd"},
	"proftpd":    {"ProFTPD"},
	"mysql":      {"MySQL", "MariaDB"},
	"mariadb":    {"MariaDB", "MySQL"},
	"postgresql": {"PostgreSQL", "postgres"},
	"postgres":   {"PostgreSQL"},
	"mongodb":    {"MongoDB"},
	"mssql":      {"Microsoft SQL Server"},
	"oracle":     {"Oracle Database"},
	"smb":        {"Samba"},
	"samba":      {"Samba"},
}

// AliasTable returns a copy of the built-in alias table with extra merged
// in. Keys in extra are lowercased; their lists replace the built-in ones.
func AliasTable(extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		out[k] = slices.Clone(v)
	}
	for k, v := range extra {
		out[strings.ToLower(k)] = slices.Clone(v)
	}
	return out
}

// Aliases expands service using the built-in alias table.
func Aliases(service string) []string {
	return ExpandAliases(service, defaultAliases)
}

// ExpandAliases returns service followed by every alias known for it,
// without case-insensitive duplicates. The table is keyed by lowercased
// name; when the full name is unknown the first word is tried.
func ExpandAliases(service string, table map[string][]string) []string {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil
	}
	out := []string{service}
	seen := map[string]bool{strings.ToLower(service): true}

	key := strings.ToLower(service)
	extra, ok := table[key]
	if !ok {
		if fields := strings.Fields(key); len(fields) > 1 {
			extra = table[fields[0]]
		}
	}
	for _, a := range extra {
		k := strings.ToLower(a)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}
