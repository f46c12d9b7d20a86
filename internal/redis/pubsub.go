package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
)

const updateChannelPrefix = "reputation:updates:"

// Fanout relays recomputed snapshots between engine instances over Redis
// Pub/Sub, so websocket subscribers on every instance see updates no matter
// which instance handled the triggering event. Messages carry the sender's
// instance ID; each instance ignores its own, having already broadcast
// locally.
type Fanout struct {
	rdb         *goredis.Client
	instanceID  string
	broadcaster domain.Broadcaster
}

type updateMessage struct {
	Instance string                    `json:"instance"`
	Snapshot domain.ReputationSnapshot `json:"snapshot"`
}

func NewFanout(client *Client, broadcaster domain.Broadcaster) *Fanout {
	return &Fanout{
		rdb:         client.rdb,
		instanceID:  uuid.NewString(),
		broadcaster: broadcaster,
	}
}

func updateChannel(subjectID string) string {
	return updateChannelPrefix + subjectID
}

// PublishSnapshot announces a recomputed snapshot to the other instances.
// Best-effort: a failed publish only delays remote subscribers until their
// next cache read.
func (f *Fanout) PublishSnapshot(ctx context.Context, snapshot domain.ReputationSnapshot) error {
	payload, err := json.Marshal(updateMessage{Instance: f.instanceID, Snapshot: snapshot})
	if err != nil {
		return fmt.Errorf("marshaling snapshot update: %w", err)
	}
	return f.rdb.Publish(ctx, updateChannel(snapshot.SubjectID), payload).Err()
}

// Run subscribes to all subject update channels and forwards remote
// snapshots to the local hub. Blocks until ctx is canceled.
func (f *Fanout) Run(ctx context.Context) {
	sub := f.rdb.PSubscribe(ctx, updateChannelPrefix+"*")
	defer sub.Close()

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			f.handle(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fanout) handle(msg *goredis.Message) {
	var update updateMessage
	if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
		slog.Warn("Dropping malformed pubsub message", "channel", msg.Channel, "error", err)
		return
	}
	if update.Instance == f.instanceID {
		return
	}

	subjectID := strings.TrimPrefix(msg.Channel, updateChannelPrefix)
	if subjectID == "" || update.Snapshot.SubjectID != subjectID {
		slog.Warn("Dropping pubsub message with mismatched subject",
			"channel", msg.Channel,
			"subjectId", update.Snapshot.SubjectID,
		)
		return
	}

	f.broadcaster.Broadcast(subjectID, update.Snapshot)
}
