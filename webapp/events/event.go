package events

import (
	"encoding/json"

	"github.com/guardian/jobpanel/common/models"
)

const (
	STATUS_UPDATE = "status_update"
	LOG_UPDATE    = "log_update"

	START_JOB  = "start_job"
	CANCEL_JOB = "cancel_job"
)

/**
Event is one outbound message. Status is only meaningful for status_update.
*/
type Event struct {
	Name    string             `json:"event"`
	Message string             `json:"message"`
	Status  models.EventStatus `json:"status,omitempty"`
}

func StatusUpdate(message string, status models.EventStatus) Event {
	return Event{Name: STATUS_UPDATE, Message: message, Status: status}
}

func LogUpdate(message string) Event {
	return Event{Name: LOG_UPDATE, Message: message}
}

type statusPayload struct {
	Message string             `json:"message"`
	Status  models.EventStatus `json:"status"`
}

type logPayload struct {
	Message string `json:"message"`
}

type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

/**
renders the event in the form clients receive it: {"event": name, "data": {...}}
*/
func (e Event) Frame() ([]byte, error) {
	var data interface{}
	if e.Name == STATUS_UPDATE {
		data = statusPayload{Message: e.Message, Status: e.Status}
	} else {
		data = logPayload{Message: e.Message}
	}
	return json.Marshal(frame{Event: e.Name, Data: data})
}

/**
Emitter delivers events to every connected client
*/
type Emitter interface {
	Emit(ev Event)
}

/**
inbound messages from clients carry only an event name
*/
type inboundMessage struct {
	Event string `json:"event"`
}
