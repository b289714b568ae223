// Package alm provides the Ansible log triage service application.
package alm

import (
	"errors"

	"github.com/spf13/pflag"

	cacheopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/cache"
	httpopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/http"
	llmopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/llm"
	logopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/logger"
	lokiopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/loki"
	milvusopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/milvus"
	triageopts "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/options/triage"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/observability/tracing"
)

// Options contains all triage service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains Milvus database configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Loki contains live log query configuration.
	Loki *lokiopts.Options `json:"loki" mapstructure:"loki"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// Triage contains clustering and router configuration.
	Triage *triageopts.Options `json:"triage" mapstructure:"triage"`

	// Cache contains plan cache configuration.
	Cache *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// Tracing contains distributed tracing configuration.
	Tracing *tracing.Options `json:"tracing" mapstructure:"tracing"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":8085"

	return &Options{
		HTTP:      httpOpts,
		Log:       logopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Loki:      lokiopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		Triage:    triageopts.NewOptions(),
		Cache:     cacheopts.NewOptions(),
		Tracing:   tracing.NewOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Loki.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding.")
	o.Chat.AddFlags(fs, "chat.")
	o.Triage.AddFlags(fs)
	o.Cache.AddFlags(fs)
	o.Tracing.AddFlags(fs)
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if err := o.HTTP.Validate(); err != nil {
		return err
	}

	var errs []error
	errs = append(errs, o.Milvus.Validate()...)
	errs = append(errs, o.Loki.Validate()...)
	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.Chat.Validate()...)
	errs = append(errs, o.Triage.Validate()...)
	errs = append(errs, o.Cache.Validate()...)
	errs = append(errs, o.Tracing.Validate()...)
	return errors.Join(errs...)
}

// Complete completes the options with defaults.
func (o *Options) Complete() error {
	if err := o.HTTP.Complete(); err != nil {
		return err
	}
	if err := o.Log.Complete(); err != nil {
		return err
	}
	return o.Cache.Complete()
}
