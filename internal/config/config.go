package config

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Detection model identifiers. The selected model also namespaces the
// fingerprint cache, since embeddings are not comparable across models.
const (
	ModelHOG = "hog" // lightweight detector, cheap per image
	ModelCNN = "cnn" // heavier detector, more accurate
)

// Tolerance presets. The children preset is stricter because child faces
// are harder to discriminate.
const (
	DefaultTolerance  = 0.6
	ChildrenTolerance = 0.5
)

// Batch size defaults tied to detection-model economics: the lightweight
// detector amortizes well over larger batches, the heavy one does not.
const (
	batchSizeHOG = 16
	batchSizeCNN = 4
)

type Config struct {
	Directories DirectoriesConfig       `yaml:"directories"`
	Detector    DetectorConfig          `yaml:"detector"`
	Recognition RecognitionConfig       `yaml:"recognition"`
	Performance PerformanceConfig       `yaml:"performance"`
	Behavior    BehaviorConfig          `yaml:"behavior"`
	Logging     LoggingConfig           `yaml:"logging"`
	People      map[string]PersonConfig `yaml:"people"`
}

type DirectoriesConfig struct {
	Input      string `yaml:"input"`       // directory with images to sort
	KnownFaces string `yaml:"known_faces"` // one subdirectory per enrolled person
	Output     string `yaml:"output"`      // base directory for sorted images
	Cache      string `yaml:"cache"`       // fingerprint cache directory
	Logs       string `yaml:"logs"`        // run logs and audit trail
}

type DetectorConfig struct {
	URL string `yaml:"url"` // face detection/embedding server, defaults to http://localhost:8000
}

type RecognitionConfig struct {
	Model            string `yaml:"model"`              // hog or cnn
	ChildrenSettings bool   `yaml:"children_settings"`  // stricter tolerance for child faces
	MinFaceSize      int    `yaml:"min_face_size"`      // pixels, smaller detections are discarded
	MaxImageSize     int    `yaml:"max_image_size"`     // maximum dimension sent to the detector
	AgeBasedMatching bool   `yaml:"age_based_matching"` // use birthdates to adjust confidence
	AgeTolerance     int    `yaml:"age_tolerance"`      // years
}

type PerformanceConfig struct {
	Workers   int `yaml:"workers"`    // 0 = number of CPUs
	BatchSize int `yaml:"batch_size"` // 0 = model default
}

type BehaviorConfig struct {
	MoveFiles bool     `yaml:"move_files"` // move instead of copy
	Recursive bool     `yaml:"recursive"`  // process subdirectories
	Priority  []string `yaml:"priority"`   // explicit priority order, overrides per-person ranks
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// PersonConfig holds the per-person enrollment settings.
type PersonConfig struct {
	Birthdate  string `yaml:"birthdate"`   // YYYY-MM-DD, optional
	Priority   int    `yaml:"priority"`    // lower wins, 0 = unranked
	OutputPath string `yaml:"output_path"` // custom destination, optional
	FacesPath  string `yaml:"faces_path"`  // custom reference image directory, optional
}

// Default returns the built-in configuration. File values, environment
// variables and flags are layered on top, in that order.
func Default() *Config {
	return &Config{
		Directories: DirectoriesConfig{
			Input:      "unsorted",
			KnownFaces: "known_faces",
			Output:     "sorted",
			Cache:      ".face_cache",
			Logs:       "logs",
		},
		Detector: DetectorConfig{
			URL: "http://localhost:8000",
		},
		Recognition: RecognitionConfig{
			Model:            ModelHOG,
			ChildrenSettings: true,
			MinFaceSize:      20,
			MaxImageSize:     2000,
			AgeTolerance:     5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables. A missing file is not an error; a malformed file is,
// since silently ignoring it would run with settings the user did not choose.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DETECTOR_URL"); v != "" {
		c.Detector.URL = v
	}
	if v := os.Getenv("FACE_SORTER_INPUT"); v != "" {
		c.Directories.Input = v
	}
	if v := os.Getenv("FACE_SORTER_OUTPUT"); v != "" {
		c.Directories.Output = v
	}
	if v := os.Getenv("FACE_SORTER_KNOWN_FACES"); v != "" {
		c.Directories.KnownFaces = v
	}
	if v := os.Getenv("FACE_SORTER_CACHE_DIR"); v != "" {
		c.Directories.Cache = v
	}
	if v := os.Getenv("FACE_SORTER_LOG_DIR"); v != "" {
		c.Directories.Logs = v
	}
	c.Performance.Workers = envInt("FACE_SORTER_WORKERS", c.Performance.Workers)
	c.Performance.BatchSize = envInt("FACE_SORTER_BATCH_SIZE", c.Performance.BatchSize)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// Validate checks the settings that must be right before any file is touched.
func (c *Config) Validate() error {
	if c.Recognition.Model != ModelHOG && c.Recognition.Model != ModelCNN {
		return fmt.Errorf("unknown detection model: %s (supported: %s, %s)", c.Recognition.Model, ModelHOG, ModelCNN)
	}
	if c.Directories.Input == "" {
		return fmt.Errorf("input directory is not configured")
	}
	if _, err := os.Stat(c.Directories.Input); err != nil {
		return fmt.Errorf("input directory not found: %s", c.Directories.Input)
	}
	if c.Directories.Output == "" {
		return fmt.Errorf("output directory is not configured")
	}
	return nil
}

// Tolerance returns the matching tolerance for the configured settings.
func (c *Config) Tolerance() float64 {
	if c.Recognition.ChildrenSettings {
		return ChildrenTolerance
	}
	return DefaultTolerance
}

// BatchSize returns the configured batch size or the model default.
func (c *Config) BatchSize() int {
	if c.Performance.BatchSize > 0 {
		return c.Performance.BatchSize
	}
	if c.Recognition.Model == ModelCNN {
		return batchSizeCNN
	}
	return batchSizeHOG
}

// Workers returns the configured worker count or the host parallelism.
func (c *Config) Workers() int {
	if c.Performance.Workers > 0 {
		return c.Performance.Workers
	}
	return runtime.NumCPU()
}

// PriorityList returns identity names in priority order. An explicit
// behavior.priority list wins; otherwise people with a priority rank are
// ordered by rank, name as tie break. People without a rank are excluded,
// matching the hard-filter semantics of priority matching.
func (c *Config) PriorityList() []string {
	if len(c.Behavior.Priority) > 0 {
		return c.Behavior.Priority
	}

	type ranked struct {
		name string
		rank int
	}
	var people []ranked
	for name, p := range c.People {
		if p.Priority > 0 {
			people = append(people, ranked{name, p.Priority})
		}
	}
	sort.Slice(people, func(i, j int) bool {
		if people[i].rank != people[j].rank {
			return people[i].rank < people[j].rank
		}
		return people[i].name < people[j].name
	})

	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.name
	}
	return names
}

// PersonPaths returns the custom destination directories keyed by name.
func (c *Config) PersonPaths() map[string]string {
	paths := make(map[string]string)
	for name, p := range c.People {
		if p.OutputPath != "" {
			paths[name] = p.OutputPath
		}
	}
	return paths
}

// Birthdates returns the known birthdates keyed by name.
func (c *Config) Birthdates() map[string]string {
	dates := make(map[string]string)
	for name, p := range c.People {
		if p.Birthdate != "" {
			dates[name] = p.Birthdate
		}
	}
	return dates
}
