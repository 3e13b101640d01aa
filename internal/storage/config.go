package storage

// Options holds the object storage connection settings for archive export.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every object key, e.g. "archive/".
	Prefix string
}

// Enabled reports whether an endpoint is configured.
func (o Options) Enabled() bool { return o.Endpoint != "" }
