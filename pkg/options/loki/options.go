// Package loki provides options for the live log query (Loki) client.
package loki

import (
	"fmt"
	"time"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Loki client configuration.
type Options struct {
	// Address is the Loki base URL.
	Address string `json:"address" mapstructure:"address"`

	// Timeout for query requests.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxEntries caps the number of log lines returned per query.
	MaxEntries int `json:"max-entries" mapstructure:"max-entries"`

	// OrgID is the optional X-Scope-OrgID header for multi-tenant Loki.
	OrgID string `json:"org-id" mapstructure:"org-id"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:    "http://localhost:3100",
		Timeout:    30 * time.Second,
		MaxEntries: 1000,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Address, options.Join(prefixes...)+"loki.address", o.Address, "Loki base URL.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"loki.timeout", o.Timeout, "Loki query timeout.")
	fs.IntVar(&o.MaxEntries, options.Join(prefixes...)+"loki.max-entries", o.MaxEntries, "Maximum log lines returned per query.")
	fs.StringVar(&o.OrgID, options.Join(prefixes...)+"loki.org-id", o.OrgID, "Optional X-Scope-OrgID header value.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("loki address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("loki timeout must be positive"))
	}
	if o.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("loki max-entries must be positive"))
	}
	return errs
}
