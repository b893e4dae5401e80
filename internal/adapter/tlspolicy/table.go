package tlspolicy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
)

// CertPolicyEntry is the load-time trust decision for one hostname.
// Must is only ever true when Cert holds a usable PEM certificate.
type CertPolicyEntry struct {
	pool     *x509.CertPool
	Hostname string
	CertPath string
	Cert     []byte
	Must     bool
}

// Pinned reports whether connections to this host verify against Cert
func (e CertPolicyEntry) Pinned() bool {
	return e.Must && len(e.Cert) > 0 && e.pool != nil
}

type ReadFileFunc func(path string) ([]byte, error)

// CertTable is immutable once built; lookups are exact hostname matches
type CertTable struct {
	entries map[string]CertPolicyEntry
	order   []string
}

func EmptyTable() *CertTable {
	return &CertTable{entries: map[string]CertPolicyEntry{}}
}

// BuildCertTable reads every certificate once. An unreadable or unparsable certificate
// degrades that host to Must=false with a warning, it never fails the load.
func BuildCertTable(configs []domain.CertConfig, readFile ReadFileFunc, log *logger.StyledLogger) *CertTable {
	if readFile == nil {
		readFile = os.ReadFile
	}

	table := &CertTable{entries: make(map[string]CertPolicyEntry, len(configs))}
	for _, cfg := range configs {
		host := strings.TrimSpace(cfg.Hostname)
		if host == "" {
			log.Warn("Skipping certificate entry without a hostname", "cert_path", cfg.CertPath)
			continue
		}

		entry := CertPolicyEntry{Hostname: host, CertPath: cfg.CertPath, Must: cfg.Must}
		if cfg.CertPath != "" {
			data, err := readFile(cfg.CertPath)
			if err != nil {
				log.WarnWithProvider("Unable to read certificate, verification disabled for", host,
					"cert_path", cfg.CertPath, "error", err)
			} else {
				entry.Cert = data
				pool := x509.NewCertPool()
				if pool.AppendCertsFromPEM(data) {
					entry.pool = pool
				} else {
					log.WarnWithProvider("Certificate is not valid PEM, verification disabled for", host,
						"cert_path", cfg.CertPath)
				}
			}
		}

		if entry.Must && entry.pool == nil {
			entry.Must = false
		}

		if _, seen := table.entries[host]; !seen {
			table.order = append(table.order, host)
		}
		table.entries[host] = entry
	}
	return table
}

func (t *CertTable) Lookup(hostname string) (CertPolicyEntry, bool) {
	e, ok := t.entries[hostname]
	return e, ok
}

func (t *CertTable) Entries() []CertPolicyEntry {
	out := make([]CertPolicyEntry, 0, len(t.order))
	for _, host := range t.order {
		out = append(out, t.entries[host])
	}
	return out
}

func (t *CertTable) Len() int {
	return len(t.entries)
}

// Apply pins the host's certificate when the entry exists, is required and usable;
// every other case disables verification. There is no retry or fallback per request.
func (t *CertTable) Apply(cfg *tls.Config, hostname string) bool {
	if entry, ok := t.entries[hostname]; ok && entry.Pinned() {
		cfg.RootCAs = entry.pool
		cfg.InsecureSkipVerify = false
		return true
	}
	cfg.RootCAs = nil
	cfg.InsecureSkipVerify = true //nolint:gosec // trust degrade is configured per host
	return false
}

// LoadCertsFile reads the ordered certificate list from .json, .yaml or .yml
func LoadCertsFile(path string) ([]domain.CertConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read certs file %s: %w", path, err)
	}

	var configs []domain.CertConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &configs)
	default:
		err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &configs)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid certs file %s: %w", path, err)
	}
	return configs, nil
}
