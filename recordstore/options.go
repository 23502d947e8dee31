package recordstore

import (
	"time"

	"recordstore/docstore"
)

// Options configure a Manager. Zero fields fall back to DefaultOptions.
type Options struct {
	// Collection holding the records.
	Collection string
	// Database on the server. Ignored by the bolt backend.
	Database string
	// SchemaName labels the record set in logs.
	SchemaName string
	// OpTimeout bounds each store round-trip. Zero keeps the caller's context as is.
	OpTimeout time.Duration
	// AdditionalOptions are passed to the driver.
	AdditionalOptions ClientOptions
}

// ClientOptions are driver-level settings layered over the defaults.
type ClientOptions struct {
	AppName                string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
	DirectConnection       *bool
	RetryWrites            *bool
}

// DefaultOptions returns the option set caller options are merged over.
func DefaultOptions() Options {
	retryWrites := true
	return Options{
		Collection: "money",
		Database:   "recordstore",
		SchemaName: "userBalance",
		OpTimeout:  10 * time.Second,
		AdditionalOptions: ClientOptions{
			AppName:                "recordstore",
			ConnectTimeout:         10 * time.Second,
			ServerSelectionTimeout: 10 * time.Second,
			MaxPoolSize:            100,
			RetryWrites:            &retryWrites,
		},
	}
}

// Merge returns o with every zero field taken from base.
func (o Options) Merge(base Options) Options {
	out := base
	if o.Collection != "" {
		out.Collection = o.Collection
	}
	if o.Database != "" {
		out.Database = o.Database
	}
	if o.SchemaName != "" {
		out.SchemaName = o.SchemaName
	}
	if o.OpTimeout != 0 {
		out.OpTimeout = o.OpTimeout
	}
	out.AdditionalOptions = o.AdditionalOptions.merge(base.AdditionalOptions)
	return out
}

func (c ClientOptions) merge(base ClientOptions) ClientOptions {
	out := base
	if c.AppName != "" {
		out.AppName = c.AppName
	}
	if c.ConnectTimeout != 0 {
		out.ConnectTimeout = c.ConnectTimeout
	}
	if c.ServerSelectionTimeout != 0 {
		out.ServerSelectionTimeout = c.ServerSelectionTimeout
	}
	if c.MaxPoolSize != 0 {
		out.MaxPoolSize = c.MaxPoolSize
	}
	if c.MinPoolSize != 0 {
		out.MinPoolSize = c.MinPoolSize
	}
	if c.DirectConnection != nil {
		out.DirectConnection = c.DirectConnection
	}
	if c.RetryWrites != nil {
		out.RetryWrites = c.RetryWrites
	}
	return out
}

func (o Options) dialOptions() docstore.DialOptions {
	return docstore.DialOptions{
		Database:               o.Database,
		AppName:                o.AdditionalOptions.AppName,
		ConnectTimeout:         o.AdditionalOptions.ConnectTimeout,
		ServerSelectionTimeout: o.AdditionalOptions.ServerSelectionTimeout,
		MaxPoolSize:            o.AdditionalOptions.MaxPoolSize,
		MinPoolSize:            o.AdditionalOptions.MinPoolSize,
		DirectConnection:       o.AdditionalOptions.DirectConnection,
		RetryWrites:            o.AdditionalOptions.RetryWrites,
		FileLockTimeout:        o.AdditionalOptions.ConnectTimeout,
	}
}
