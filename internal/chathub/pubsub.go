package chathub

import (
	"context"
	"encoding/json"
	"log"

	"liveflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Subscriber opens the pattern subscription over all room channels.
type Subscriber interface {
	SubscribeToAllRooms(ctx context.Context) *redis.PubSub
}

// StartPubSubListener запускає Goroutine, яка слухає Redis Pub/Sub
// and feeds decoded room messages into PubSubCh.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	pubsub := m.Relays.SubscribeToAllRooms(ctx)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				chatMsg, err := decodeRelay([]byte(msg.Payload))
				if err != nil {
					log.Printf("ERROR: unmarshalling Redis message from %s: %v", msg.Channel, err)
					continue
				}
				select {
				case m.PubSubCh <- chatMsg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func decodeRelay(payload []byte) (models.ChatMessage, error) {
	var env models.RelayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return models.ChatMessage{}, err
	}
	msg := env.Message
	msg.SenderID = env.SenderID
	return msg, nil
}
