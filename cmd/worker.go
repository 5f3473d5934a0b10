package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/urfave/cli/v2"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/orenmazor/jobservitor/internal/config"
	"github.com/orenmazor/jobservitor/internal/metrics"
	"github.com/orenmazor/jobservitor/internal/objects"
	"github.com/orenmazor/jobservitor/internal/store"
	"github.com/orenmazor/jobservitor/internal/worker"
	"github.com/orenmazor/jobservitor/internal/worker/dockerrunner"
	"github.com/orenmazor/jobservitor/internal/worker/k8srunner"
)

var WorkerCommand = &cli.Command{
	Name:  "worker",
	Usage: "Run an executor worker (§4.3)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "namespace",
			Usage:   "Kubernetes namespace to dispatch jobs into (kubernetes runtime only)",
			Value:   "default",
			EnvVars: []string{"EXECUTOR_KUBERNETES_NAMESPACE"},
		},
		&cli.StringFlag{
			Name:    "kubeconfig",
			Usage:   "Path to a kubeconfig file; empty uses in-cluster config (kubernetes runtime only)",
			EnvVars: []string{"EXECUTOR_KUBECONFIG"},
		},
	},
	Action: func(ctx *cli.Context) error {
		return RunWorker(ctx)
	},
}

func RunWorker(ctx *cli.Context) error {
	if err := config.LoadConfigFile(); err != nil {
		logging.Log.WithError(err).Warn("failed to load config file, continuing with env/flag defaults")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	broker, err := store.NewRedisStore(dialCtx, config.RedisURI)
	if err != nil {
		return fmt.Errorf("failed to connect to job store: %w", err)
	}
	defer broker.Close()

	runner, err := buildRunner(ctx)
	if err != nil {
		return fmt.Errorf("failed to build container runner: %w", err)
	}

	objectStore, err := objects.NewObjectStore(objects.ObjectStoreConfig{
		Type: config.ObjectStoreType,
		Config: map[string]string{
			"base_path": config.ObjectStoreBasePath,
			"bucket":    config.ObjectStoreBucket,
			"prefix":    config.ObjectStorePrefix,
		},
	})
	if err != nil {
		logging.Log.WithError(err).Warn("object store unavailable, job logs will not be captured")
	}

	cpuCores, memoryGB := config.ExecutorCPUCores, config.ExecutorMemoryGB
	if cpuCores == 0 || memoryGB == 0 {
		detectedCPU, detectedMem := worker.DetectResources()
		if cpuCores == 0 {
			cpuCores = detectedCPU
		}
		if memoryGB == 0 {
			memoryGB = detectedMem
		}
	}

	cfg := worker.Config{
		Name:         worker.ResolveIdentity(config.ExecutorName),
		GPUType:      store.GPUType(config.ExecutorGPUType),
		CPUCores:     cpuCores,
		MemoryGB:     memoryGB,
		DC:           config.ExecutorDataCenter,
		Region:       config.ExecutorRegion,
		IdleTime:     time.Duration(config.ExecutorIdleTime) * time.Second,
		BlockingTime: time.Duration(config.ExecutorBlockingTime) * time.Second,
	}

	life := worker.NewLifecycle(30 * time.Second)
	monitor := worker.NewResourceMonitor(cfg.Name, 15*time.Second)

	runCtx, runCancel := context.WithCancel(context.Background())
	life.SetupSignalHandlers(runCtx, runCancel)

	go serveWorkerMetrics()
	monitor.Start(runCtx)
	defer monitor.Stop()

	logging.Log.WithField("executor", cfg.Name).
		WithField("gpu_type", cfg.GPUType).
		WithField("cpu_cores", cfg.CPUCores).
		WithField("memory_gb", cfg.MemoryGB).
		WithField("dc", cfg.DC).
		WithField("region", cfg.Region).
		Info("executor worker configured")

	supervisor := worker.NewSupervisor(cfg, broker, runner, objectStore, life, monitor)
	return supervisor.Run(runCtx)
}

func buildRunner(ctx *cli.Context) (worker.Runner, error) {
	switch config.ExecutorRuntime {
	case "kubernetes":
		kubeconfigPath := ctx.String("kubeconfig")
		var restConfig *rest.Config
		var err error
		if kubeconfigPath != "" {
			restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		} else {
			restConfig, err = rest.InClusterConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes clientset: %w", err)
		}
		return k8srunner.New(clientset, ctx.String("namespace")), nil
	case "docker", "":
		return dockerrunner.New()
	default:
		return nil, fmt.Errorf("unknown executor runtime %q", config.ExecutorRuntime)
	}
}

func serveWorkerMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", config.MetricsPort)
	logging.Log.Infof("serving executor metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Log.WithError(err).Warn("metrics listener exited")
	}
}
