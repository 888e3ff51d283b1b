package idb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nainya/idbstore/internal/logger"
	"github.com/nainya/idbstore/internal/metrics"
	"github.com/nainya/idbstore/pkg/clone"
	"github.com/nainya/idbstore/pkg/keys"
)

// Option configures a Factory.
type Option func(*Factory)

// WithLogger routes engine logs to z.
func WithLogger(z zerolog.Logger) Option {
	return func(f *Factory) { f.log = logger.Wrap(z).Component("idb") }
}

// WithMetrics registers engine collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(f *Factory) { f.metrics = metrics.New(reg) }
}

// WithCloner sets the value codec. The default is clone.Install().
func WithCloner(c *clone.Cloner) Option {
	return func(f *Factory) { f.cloner = c }
}

// StoreOptions configures CreateObjectStore.
type StoreOptions struct {
	KeyPath       keys.KeyPath
	AutoIncrement bool
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	Unique     bool
	MultiEntry bool
}

// TxOption configures Database.Transaction.
type TxOption func(*Transaction)

// WithDurability records a durability hint: "default", "strict" or
// "relaxed". The engine keeps nothing on disk and ignores it.
func WithDurability(d string) TxOption {
	return func(tx *Transaction) { tx.durability = d }
}
