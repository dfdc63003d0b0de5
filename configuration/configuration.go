// Package configuration declares the ambient, struct-tag driven settings
// used by programs that embed a splittable.SplitTable. None of these
// fields are read by the splittable package itself: the table's own
// public surface takes configuration only at construction time.
package configuration

import "time"

type Configuration struct {
	Dir              string        `usage:"data directory holding partition files"`
	Prefix           string        `usage:"partition filename prefix, also the logical table name"`
	RowSize          int           `usage:"total serialized size in bytes of one row"`
	KeyLength        int           `usage:"length in bytes of the primary key prefix of a row"`
	AgeLimit         time.Duration `usage:"maximum age of the active partition before rollover"`
	SizeLimit        int64         `usage:"maximum size in bytes of the active partition before rollover"`
	UseTailCache     bool          `usage:"cache the non-key portion of rows in memory"`
	ExceedLargeLimit bool          `usage:"allow partitions to exceed the large-table index threshold"`
	ShowConfig       bool          `usage:"print the resolved configuration and exit"`
}

// Default returns the configuration a freshly installed deployment should
// start from; flags and environment variables (read by goconfig.Read)
// override these values.
func Default() Configuration {
	return Configuration{
		Dir:              "data",
		Prefix:           "table",
		RowSize:          64,
		KeyLength:        16,
		AgeLimit:         30 * 24 * time.Hour,
		SizeLimit:        128 << 20,
		UseTailCache:     true,
		ExceedLargeLimit: false,
		ShowConfig:       false,
	}
}
