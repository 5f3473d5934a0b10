package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/catalystcommunity/app-utils-go/env"
	"gopkg.in/yaml.v3"
)

var (
	// RedisURI is the Job Store & Queue Broker endpoint (§6).
	RedisURI = env.GetEnvOrDefault("REDIS_URI", "redis://localhost:6379/0")

	// APIPort is the HTTP listener port for the API process. Not named in
	// spec.md - an ambient addition matching the teacher's Port convention.
	APIPort = env.GetEnvAsIntOrDefault("JOBSERVITOR_API_PORT", "8080")

	// MetricsPort is the worker process's Prometheus /metrics listener. The
	// API process serves /metrics on APIPort instead.
	MetricsPort = env.GetEnvAsIntOrDefault("JOBSERVITOR_METRICS_PORT", "9090")

	// Executor identity and capacity (§6). EXECUTOR_REGION's default is
	// fixed to "unknown-region" per §9's open question, correcting what
	// the spec calls out as a likely copy-paste bug in the source
	// ("unknown-dc" for both DC and region).
	ExecutorName       = env.GetEnvOrDefault("EXECUTOR_NAME", "executor-1")
	ExecutorGPUType    = env.GetEnvOrDefault("EXECUTOR_GPU_TYPE", "Any")
	ExecutorCPUCores   = env.GetEnvAsIntOrDefault("EXECUTOR_CPU_CORES", "0") // 0 = auto-detect, see worker.DetectResources
	ExecutorMemoryGB   = env.GetEnvAsIntOrDefault("EXECUTOR_MEMORY_GB", "0")
	ExecutorDataCenter = env.GetEnvOrDefault("EXECUTOR_DATA_CENTER", "unknown-dc")
	ExecutorRegion     = env.GetEnvOrDefault("EXECUTOR_REGION", "unknown-region")
	ExecutorIdleTime   = env.GetEnvAsIntOrDefault("EXECUTOR_IDLE_TIME", "1")
	ExecutorBlockingTime = env.GetEnvAsIntOrDefault("EXECUTOR_BLOCKING_TIME", "1")

	// ExecutorRuntime selects the container runtime backend: "docker" or
	// "kubernetes". Domain-stack addition, not named in spec.md §6.
	ExecutorRuntime = env.GetEnvOrDefault("EXECUTOR_RUNTIME", "docker")

	// Object store configuration, backing captured job log storage.
	ObjectStoreType     = env.GetEnvOrDefault("JOBSERVITOR_OBJECT_STORE_TYPE", "filesystem")
	ObjectStoreBasePath = env.GetEnvOrDefault("JOBSERVITOR_OBJECT_STORE_BASE_PATH", "./objects")
	ObjectStoreBucket   = env.GetEnvOrDefault("JOBSERVITOR_OBJECT_STORE_BUCKET", "jobservitor-logs")
	ObjectStorePrefix   = env.GetEnvOrDefault("JOBSERVITOR_OBJECT_STORE_PREFIX", "jobservitor/")

	// ConfigFile, when set, names a YAML file of defaults for the subset of
	// the above listed in fileDefaults; see LoadConfigFile for how it's
	// layered under the environment.
	ConfigFile = env.GetEnvOrDefault("JOBSERVITOR_CONFIG_FILE", "")
)

// fileDefaults is the subset of configuration loadable from
// JOBSERVITOR_CONFIG_FILE, adapted from the teacher's JobSpec YAML
// loading (internal/worker/job_spec.go) to a process-config-file concept.
type fileDefaults struct {
	RedisURI           string `yaml:"redis_uri"`
	APIPort            string `yaml:"api_port"`
	MetricsPort        string `yaml:"metrics_port"`
	ExecutorName       string `yaml:"executor_name"`
	ExecutorGPUType    string `yaml:"executor_gpu_type"`
	ExecutorDataCenter string `yaml:"executor_data_center"`
	ExecutorRegion     string `yaml:"executor_region"`
	ExecutorRuntime    string `yaml:"executor_runtime"`
	ObjectStoreType    string `yaml:"object_store_type"`
}

// LoadConfigFile applies JOBSERVITOR_CONFIG_FILE's contents as defaults,
// for any value whose own environment variable was left unset. Env vars
// always take precedence, so the file only ever fills gaps. No CLI flag
// sets any of these values.
func LoadConfigFile() error {
	if ConfigFile == "" {
		return nil
	}
	data, err := os.ReadFile(ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyStringIfUnset("REDIS_URI", &RedisURI, fd.RedisURI)
	applyIntIfUnset("JOBSERVITOR_API_PORT", &APIPort, fd.APIPort)
	applyIntIfUnset("JOBSERVITOR_METRICS_PORT", &MetricsPort, fd.MetricsPort)
	applyStringIfUnset("EXECUTOR_NAME", &ExecutorName, fd.ExecutorName)
	applyStringIfUnset("EXECUTOR_GPU_TYPE", &ExecutorGPUType, fd.ExecutorGPUType)
	applyStringIfUnset("EXECUTOR_DATA_CENTER", &ExecutorDataCenter, fd.ExecutorDataCenter)
	applyStringIfUnset("EXECUTOR_REGION", &ExecutorRegion, fd.ExecutorRegion)
	applyStringIfUnset("EXECUTOR_RUNTIME", &ExecutorRuntime, fd.ExecutorRuntime)
	applyStringIfUnset("JOBSERVITOR_OBJECT_STORE_TYPE", &ObjectStoreType, fd.ObjectStoreType)
	return nil
}

func applyStringIfUnset(envVar string, target *string, fileValue string) {
	if fileValue != "" && os.Getenv(envVar) == "" {
		*target = fileValue
	}
}

func applyIntIfUnset(envVar string, target *int, fileValue string) {
	if fileValue == "" || os.Getenv(envVar) != "" {
		return
	}
	if parsed, err := strconv.Atoi(fileValue); err == nil {
		*target = parsed
	}
}
