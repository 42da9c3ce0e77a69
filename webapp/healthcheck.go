package main

import (
	"log"
	"net/http"

	"github.com/go-redis/redis/v7"
	"github.com/guardian/jobpanel/common/helpers"
)

/**
reports 200 if we can serve; when redis is in use that means being able to reach it
*/
type HealthcheckHandler struct {
	redisClient *redis.Client
}

func (h HealthcheckHandler) ServeHTTP(w http.ResponseWriter, request *http.Request) {
	if h.redisClient == nil {
		w.WriteHeader(200)
		return
	}

	_, err := h.redisClient.Ping().Result()
	if err == nil {
		w.WriteHeader(200)
	} else {
		log.Printf("HEALTHCHECK FAILED: %s connecting to Redis", err)
		helpers.WriteJsonError("could not contact redis db", w, 500)
	}
}
