package messaging

import (
	"encoding/json"
	"fmt"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/actors"
)

// ActorRegistry is the part of the actor arena telemetry writes to.
type ActorRegistry interface {
	Upsert(s models.ActorState) (actors.Handle, error)
	Despawn(id string) error
}

type ActorOp string

const (
	ActorOpUpsert  ActorOp = "upsert"
	ActorOpDespawn ActorOp = "despawn"
)

// ActorMessage is one telemetry record. Op defaults to upsert.
type ActorMessage struct {
	Op    ActorOp           `json:"op,omitempty"`
	Actor models.ActorState `json:"actor"`
}

func ApplyActorMessage(registry ActorRegistry, data []byte) error {
	var msg ActorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode actor message: %w", err)
	}
	switch msg.Op {
	case "", ActorOpUpsert:
		_, err := registry.Upsert(msg.Actor)
		return err
	case ActorOpDespawn:
		return registry.Despawn(msg.Actor.ID)
	default:
		return fmt.Errorf("unknown actor op %q", msg.Op)
	}
}
