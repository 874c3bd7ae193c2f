package room_management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"noteflare/internal/models"
	"noteflare/internal/session"
	"noteflare/internal/utils"
)

var ErrRoomNotFound = errors.New("room not found")

const (
	defaultEventBuffer = 256
	roomKeyTTL         = 24 * time.Hour
)

func roomKey(documentID string) string { return "room:" + documentID }

// RoomManager mirrors hub room activity into Redis: every membership or
// presence change is published on a channel and the room's latest state is
// kept in a hash. Hub callbacks only enqueue; a single worker talks to Redis.
type RoomManager struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	log        *utils.Logger

	mu      sync.Mutex
	closed  bool
	events  chan models.RoomEvent
	dropped int
	wg      sync.WaitGroup
}

var _ session.Observer = (*RoomManager)(nil)

func NewRoomManager(redisAddr, channel string, log *utils.Logger) *RoomManager {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return newRoomManager(rdb, channel, log, defaultEventBuffer)
}

func newRoomManager(rdb *redis.Client, channel string, log *utils.Logger, buffer int) *RoomManager {
	if log == nil {
		log = utils.NewNopLogger()
	}
	rm := &RoomManager{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.New().String(),
		log:        log,
		events:     make(chan models.RoomEvent, buffer),
	}
	rm.wg.Add(1)
	go rm.run()
	rm.log.Info("room manager initialized", "instanceId", rm.instanceID, "channel", channel)
	return rm
}

func (rm *RoomManager) InstanceID() string { return rm.instanceID }

// Ping checks that Redis is reachable.
func (rm *RoomManager) Ping(ctx context.Context) error {
	return rm.rdb.Ping(ctx).Err()
}

func (rm *RoomManager) OnJoin(documentID, userID string, members int) {
	rm.enqueue(models.RoomEvent{Type: models.RoomEventJoin, DocumentID: documentID, UserID: userID, Members: members, Collaborative: members >= 2})
}

func (rm *RoomManager) OnLeave(documentID, userID string, members int) {
	rm.enqueue(models.RoomEvent{Type: models.RoomEventLeave, DocumentID: documentID, UserID: userID, Members: members, Collaborative: members >= 2})
}

func (rm *RoomManager) OnPresence(documentID string, collaborative bool, recipients int) {
	rm.enqueue(models.RoomEvent{Type: models.RoomEventPresence, DocumentID: documentID, Members: recipients, Collaborative: collaborative})
}

func (rm *RoomManager) OnRelay(string, string, int, int) {}

func (rm *RoomManager) OnMalformed(string, string) {}

// enqueue never blocks; when the worker falls behind the event is dropped.
func (rm *RoomManager) enqueue(event models.RoomEvent) {
	event.InstanceID = rm.instanceID
	event.Timestamp = time.Now().UnixMilli()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return
	}
	select {
	case rm.events <- event:
	default:
		rm.dropped++
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (rm *RoomManager) Dropped() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.dropped
}

func (rm *RoomManager) run() {
	defer rm.wg.Done()
	for event := range rm.events {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rm.apply(ctx, event); err != nil {
			rm.log.Warn("failed to record room activity", "documentId", event.DocumentID, "type", event.Type, "error", err.Error())
		}
		cancel()
	}
}

func (rm *RoomManager) apply(ctx context.Context, event models.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	if err := rm.rdb.Publish(ctx, rm.channel, data).Err(); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}

	// presence events carry recipient counts, not membership
	if event.Type == models.RoomEventPresence {
		return nil
	}
	key := roomKey(event.DocumentID)
	if event.Members == 0 {
		return rm.rdb.Del(ctx, key).Err()
	}
	pipe := rm.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"documentId":    event.DocumentID,
		"members":       event.Members,
		"collaborative": strconv.FormatBool(event.Collaborative),
		"instanceId":    event.InstanceID,
		"updatedAt":     time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, roomKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update room status in redis: %w", err)
	}
	return nil
}

// GetRoomStatus reads the last recorded activity for a document.
func (rm *RoomManager) GetRoomStatus(ctx context.Context, documentID string) (*models.RoomActivity, error) {
	result := rm.rdb.HGetAll(ctx, roomKey(documentID))
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", result.Err())
	}
	roomMap := result.Val()
	if len(roomMap) == 0 {
		return nil, ErrRoomNotFound
	}

	members, _ := strconv.Atoi(roomMap["members"])
	collaborative, _ := strconv.ParseBool(roomMap["collaborative"])
	return &models.RoomActivity{
		DocumentID:    roomMap["documentId"],
		Members:       members,
		Collaborative: collaborative,
		InstanceID:    roomMap["instanceId"],
		UpdatedAt:     roomMap["updatedAt"],
	}, nil
}

// Subscribe delivers room events published by other instances until ctx is
// cancelled.
func (rm *RoomManager) Subscribe(ctx context.Context, handle func(models.RoomEvent)) error {
	pubsub := rm.rdb.Subscribe(ctx, rm.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", rm.channel, err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event models.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				rm.log.Warn("failed to parse room event", "error", err.Error())
				continue
			}
			if event.InstanceID == rm.instanceID {
				continue
			}
			handle(event)
		}
	}
}

// Close drains pending events and closes the Redis client.
func (rm *RoomManager) Close() error {
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return nil
	}
	rm.closed = true
	close(rm.events)
	rm.mu.Unlock()

	rm.wg.Wait()
	return rm.rdb.Close()
}
