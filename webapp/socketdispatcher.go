package main

import (
	"context"
	"fmt"
	"log"

	"github.com/guardian/jobpanel/common/models"
	"github.com/guardian/jobpanel/webapp/events"
)

/**
the parts of the coordinator that realtime clients can drive
*/
type JobController interface {
	StartJob(ctx context.Context) error
	CancelJob(ctx context.Context) error
	StreamActive() bool
}

/**
SocketDispatcher connects inbound websocket events to the coordinator
*/
type SocketDispatcher struct {
	ctx        context.Context
	controller JobController
	backlog    *events.LogBacklog
}

/**
ctx should live as long as the application; a start can outlast the connection that asked for it.
backlog may be nil.
*/
func NewSocketDispatcher(ctx context.Context, controller JobController, backlog *events.LogBacklog) *SocketDispatcher {
	return &SocketDispatcher{ctx: ctx, controller: controller, backlog: backlog}
}

func (d *SocketDispatcher) Greeting(clientId string) []events.Event {
	status := models.EVENT_IDLE
	if d.controller.StreamActive() {
		status = models.EVENT_RUNNING
	}
	rtn := []events.Event{events.StatusUpdate(fmt.Sprintf("%s connected to server", clientId), status)}

	if d.backlog != nil {
		lines, err := d.backlog.Lines()
		if err != nil {
			log.Printf("WARNING SocketDispatcher could not read log backlog: %s", err)
			return rtn
		}
		for _, line := range lines {
			rtn = append(rtn, events.LogUpdate(line))
		}
	}
	return rtn
}

func (d *SocketDispatcher) Dispatch(clientId string, eventName string) {
	var err error
	switch eventName {
	case events.START_JOB:
		log.Printf("INFO client %s requested a job start", clientId)
		err = d.controller.StartJob(d.ctx)
	case events.CANCEL_JOB:
		log.Printf("INFO client %s requested a cancel", clientId)
		err = d.controller.CancelJob(d.ctx)
	default:
		log.Printf("WARNING client %s sent unknown event %s", clientId, eventName)
		return
	}
	if err != nil {
		log.Printf("DEBUG %s from client %s finished with: %s", eventName, clientId, err)
	}
}
