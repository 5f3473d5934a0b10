package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/gammazero/workerpool"
	"github.com/urfave/cli/v2"

	"github.com/orenmazor/jobservitor/internal/config"
	"github.com/orenmazor/jobservitor/internal/handlers"
	"github.com/orenmazor/jobservitor/internal/objects"
	"github.com/orenmazor/jobservitor/internal/store"
)

var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the Scheduler API (§4.1)",
	Action: func(ctx *cli.Context) error {
		return Serve()
	},
}

// Serve starts the Scheduler API: it owns no job lifecycle logic of its
// own, only Submit/Get/List/Abort against the shared Broker (§4.1, §4.2).
func Serve() error {
	if err := config.LoadConfigFile(); err != nil {
		logging.Log.WithError(err).Warn("failed to load config file, continuing with env/flag defaults")
	}

	var broker store.Broker
	var objectStore objects.ObjectStore
	var brokerErr, objectStoreErr error

	// Dial the broker and construct the log object store concurrently,
	// the way the teacher's initStores spreads independent startup work
	// across a small worker pool.
	pool := workerpool.New(2)
	pool.Submit(func() {
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		broker, brokerErr = store.NewRedisStore(dialCtx, config.RedisURI)
	})
	pool.Submit(func() {
		objectStore, objectStoreErr = objects.NewObjectStore(objects.ObjectStoreConfig{
			Type: config.ObjectStoreType,
			Config: map[string]string{
				"base_path": config.ObjectStoreBasePath,
				"bucket":    config.ObjectStoreBucket,
				"prefix":    config.ObjectStorePrefix,
			},
		})
	})
	pool.StopWait()

	if brokerErr != nil {
		return fmt.Errorf("failed to connect to job store: %w", brokerErr)
	}
	defer broker.Close()
	if objectStoreErr != nil {
		logging.Log.WithError(objectStoreErr).Warn("object store unavailable, log retrieval endpoints will be unavailable")
	} else {
		handlers.SetObjectStore(objectStore)
	}

	handler := handlers.NewRouter(broker)

	logging.Log.Infof("starting scheduler API on port %d", config.APIPort)
	err := http.ListenAndServe(fmt.Sprintf(":%d", config.APIPort), handler)
	errorutils.LogOnErr(nil, "ListenAndServe exited with: ", err)
	return err
}
