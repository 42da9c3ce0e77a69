package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v7"
	"github.com/guardian/jobpanel/common/models"
)

const DefaultChannel = "jobpanel:events"
const backlogKey = "jobpanel:logbacklog"

/**
LogBacklog keeps the most recent log lines of the current run in a redis list, so that a client
connecting part way through a run can catch up. It is cleared whenever a new job starts.
*/
type LogBacklog struct {
	client   redis.Cmdable
	maxLines int64
}

func NewLogBacklog(client redis.Cmdable, maxLines int64) *LogBacklog {
	return &LogBacklog{client: client, maxLines: maxLines}
}

func (b *LogBacklog) Record(ev Event) {
	switch {
	case ev.Name == LOG_UPDATE:
		pipe := b.client.Pipeline()
		pipe.RPush(backlogKey, ev.Message)
		pipe.LTrim(backlogKey, -b.maxLines, -1)
		if _, err := pipe.Exec(); err != nil {
			log.Printf("ERROR LogBacklog could not record line: %s", err)
		}
	case ev.Name == STATUS_UPDATE && ev.Status == models.EVENT_STARTING:
		if err := b.client.Del(backlogKey).Err(); err != nil {
			log.Printf("ERROR LogBacklog could not clear backlog: %s", err)
		}
	}
}

/**
the recorded lines, oldest first
*/
func (b *LogBacklog) Lines() ([]string, error) {
	return b.client.LRange(backlogKey, 0, -1).Result()
}

/**
RedisRelay publishes events on a redis channel and delivers whatever arrives on that channel
to the local hub, so that every replica's clients see every replica's events.
If publishing fails the event is delivered locally only.
*/
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Emitter
	backlog *LogBacklog
}

func NewRedisRelay(client *redis.Client, channel string, local Emitter, backlog *LogBacklog) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		backlog: backlog,
	}
}

func (r *RedisRelay) Emit(ev Event) {
	if r.backlog != nil {
		r.backlog.Record(ev)
	}

	content, marshalErr := json.Marshal(ev)
	if marshalErr != nil {
		log.Printf("ERROR RedisRelay could not serialise %s event: %s", ev.Name, marshalErr)
		return
	}

	if err := r.client.Publish(r.channel, content).Err(); err != nil {
		log.Printf("ERROR RedisRelay could not publish to %s, delivering locally: %s", r.channel, err)
		r.local.Emit(ev)
	}
}

/**
subscribes to the channel and starts forwarding in the background until ctx is done.
Returns once the subscription is confirmed, so that no event published after Start returns is missed.
*/
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(r.channel)
	if _, err := pubsub.Receive(); err != nil {
		pubsub.Close()
		return err
	}

	messages := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("WARNING RedisRelay ignoring malformed message on %s: %s", r.channel, err)
					continue
				}
				r.local.Emit(ev)
			}
		}
	}()
	return nil
}
