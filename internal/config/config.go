// Package config defines service configuration and its loading from defaults,
// an optional YAML file and MOTIONSCORE_ environment variables.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelURI locates the ONNX model: a local path, file://, gs:// or s3://.
	ModelURI string `koanf:"model_uri"`

	// ModelSHA256 is the expected hex digest of the model bytes. Empty skips
	// verification.
	ModelSHA256 string `koanf:"model_sha256"`

	// DefaultTargetLen is the clip length used when the model input width is
	// dynamic.
	DefaultTargetLen int `koanf:"default_target_len"`

	// PreloadModel warms the session cache at startup.
	PreloadModel bool `koanf:"preload_model"`

	// MaxBodyBytes caps prediction request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// BatchWorkers is the number of batch scoring workers; 0 uses one per CPU.
	BatchWorkers   int `koanf:"batch_workers"`
	BatchQueueSize int `koanf:"batch_queue_size"`
	MaxBatchClips  int `koanf:"max_batch_clips"`

	// ORTLibraryPath points at the onnxruntime shared library.
	ORTLibraryPath string `koanf:"ort_library_path"`

	// ORTIntraOpThreads caps per-run threads; 0 keeps the runtime default.
	ORTIntraOpThreads int `koanf:"ort_intra_op_threads"`

	GCSEndpoint        string `koanf:"gcs_endpoint"`
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`

	S3Region          string `koanf:"s3_region"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3UsePathStyle    bool   `koanf:"s3_use_path_style"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":8080",
		ModelURI:         "model.onnx",
		DefaultTargetLen: 75,
		PreloadModel:     true,
		MaxBodyBytes:     1 << 20,
		BatchQueueSize:   1024,
		MaxBatchClips:    64,
		S3Region:         "us-east-1",
	}
}

// ModelSettings is the subset of configuration consulted on each model load.
type ModelSettings struct {
	URI    string
	SHA256 string
}

// Model returns the model settings of c.
func (c *Config) Model() ModelSettings {
	return ModelSettings{URI: c.ModelURI, SHA256: c.ModelSHA256}
}
