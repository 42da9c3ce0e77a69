package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/guardian/jobpanel/common/helpers"
	"github.com/guardian/jobpanel/webapp/cluster"
	"github.com/guardian/jobpanel/webapp/coordinator"
	"github.com/guardian/jobpanel/webapp/events"
	"github.com/guardian/jobpanel/webapp/jobs"
	"github.com/guardian/jobpanel/webapp/naming"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

type MyHttpApp struct {
	index       IndexHandler
	healthcheck HealthcheckHandler
	static      StaticFilesHandler
	jobs        jobs.JobsEndpoints
	hub         *events.Hub
}

func SetupRedis(config *helpers.Config) (*redis.Client, error) {
	log.Printf("Connecting to Redis on %s", config.Redis.Address)
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Address,
		Password: config.Redis.Password,
		DB:       config.Redis.DBNum,
	})

	_, err := client.Ping().Result()
	if err != nil {
		log.Printf("Could not contact Redis: %s", err)
		return nil, err
	}
	log.Printf("Done.")
	return client, nil
}

/**
returns the namespace from config, or the one we are deployed into if config leaves it empty
*/
func resolveNamespace(config *helpers.Config) string {
	if config.Namespace != "" {
		return config.Namespace
	}
	ns, err := cluster.GetMyNamespace()
	if err != nil {
		log.Fatal("No namespace configured and could not determine our own: ", err)
	}
	return ns
}

func main() {
	var app MyHttpApp

	configFile := pflag.String("config", "", "path to a yaml config file")
	kubeConfig := pflag.String("kubeconfig", "", "kubeconfig to use when running outside a cluster")
	pflag.Parse()

	if dotEnvErr := godotenv.Load(); dotEnvErr == nil {
		log.Print("Loaded environment from .env")
	}

	/*
		read in config and establish connections to the cluster and (optionally) redis
	*/
	config, configReadErr := helpers.LoadConfig(*configFile)
	if configReadErr != nil {
		log.Fatal("No configuration, can't continue: ", configReadErr)
	}
	if *kubeConfig != "" {
		config.KubeConfig = *kubeConfig
	}

	k8Client, k8Err := cluster.GetK8Client(config.KubeConfig)
	if k8Err != nil {
		log.Fatal("Could not connect to kubernetes: ", k8Err)
	}
	namespace := resolveNamespace(config)
	gateway := cluster.NewK8sGateway(k8Client, namespace)
	log.Printf("Managing jobs from cronjob %s in namespace %s", config.CronJobName, namespace)

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	app.hub = events.NewHub(config.CorsAllowedOrigins, 256)
	var emitter events.Emitter = app.hub
	var backlog *events.LogBacklog

	var redisClient *redis.Client
	if config.Redis.Address != "" {
		var redisErr error
		redisClient, redisErr = SetupRedis(config)
		if redisErr != nil {
			log.Fatal("Could not connect to redis")
		}
		backlog = events.NewLogBacklog(redisClient, config.Redis.BacklogLines)
		relay := events.NewRedisRelay(redisClient, events.DefaultChannel, app.hub, backlog)
		if relayErr := relay.Start(appCtx); relayErr != nil {
			log.Fatal("Could not subscribe to the redis event channel: ", relayErr)
		}
		emitter = relay
	}

	jobCoordinator := coordinator.NewCoordinator(appCtx, gateway, naming.NewPolicy(config.CronJobName), emitter, coordinator.OptionsFromConfig(config))
	app.hub.SetDispatcher(NewSocketDispatcher(appCtx, jobCoordinator, backlog))

	app.index.filePath = config.IndexPath
	app.index.contentType = "text/html"
	app.index.exactMatchPath = "/"
	app.healthcheck.redisClient = redisClient
	app.static.basePath = config.StaticPath
	app.static.uriTrim = 2
	app.jobs = jobs.NewJobsEndpoints(jobCoordinator)

	mux := http.NewServeMux()
	mux.Handle("/default", http.NotFoundHandler())
	mux.Handle("/", app.index)
	mux.Handle("/healthcheck", app.healthcheck)
	mux.Handle("/static/", app.static)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", app.hub)
	app.jobs.WireUp(mux, "/api/jobs")

	var handler http.Handler = mux
	if config.HttpAuth.Enabled() {
		log.Printf("HTTP basic auth is enabled for realm %s", config.HttpAuth.Realm)
		handler = BasicAuthMiddleware(config.HttpAuth, mux)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		log.Printf("Received %s, shutting down", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR could not shut down http server cleanly: %s", err)
		}
	}()

	log.Printf("Starting server on port %d", config.Port)
	startServerErr := server.ListenAndServe()
	if startServerErr != nil && !errors.Is(startServerErr, http.ErrServerClosed) {
		log.Fatal(startServerErr)
	}

	app.hub.Close()
	jobCoordinator.Shutdown()
	cancelApp()
	if redisClient != nil {
		redisClient.Close()
	}
	log.Print("Shutdown complete")
}
