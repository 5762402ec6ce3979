package config

// Service names used by the breathsense CLI. Each maps to one YAML file
// inside a context directory.
const (
	ServiceDetector = "detector"
	ServiceStorage  = "storage"
	ServiceMonitor  = "monitor"
)

// Detector holds detection pipeline settings.
type Detector struct {
	// SampleRate of the incoming audio in Hz. Zero means 16000.
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// ChunkSize is the number of samples per processing chunk.
	// Zero means 1024.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// ResetOnStart clears detector history when a run starts.
	ResetOnStart bool `yaml:"reset_on_start,omitempty"`
}

// Storage holds session database and export settings.
type Storage struct {
	// DBDir is the session database directory. Empty means the
	// data directory under the config root.
	DBDir string `yaml:"db_dir,omitempty"`

	// ExportDir is the local directory for session exports.
	ExportDir string `yaml:"export_dir,omitempty"`

	// S3Bucket, S3Prefix and S3Region select an S3 export target.
	// When S3Bucket is set exports go to S3 instead of ExportDir.
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty"`
	S3Region string `yaml:"s3_region,omitempty"`
}

// Monitor holds the live monitor endpoint settings.
type Monitor struct {
	// Listen is the HTTP listen address for the websocket monitor,
	// for example "127.0.0.1:8799". Empty disables the monitor.
	Listen string `yaml:"listen,omitempty"`
}
