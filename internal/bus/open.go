package bus

import (
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dyluth/signboard/internal/config"
)

// Open creates the bus selected by cfg.Backend. cfg must have been validated.
func Open(cfg config.BusConfig) (Bus, error) {
	switch cfg.Backend {
	case config.BusRedis:
		b, err := NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BusMQTT:
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = fmt.Sprintf("signboard-%d-%s", os.Getpid(), watermill.NewShortUUID())
		}
		b, err := NewMQTT(cfg.MQTTBroker, clientID)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BusMemory:
		return NewMemory(watermill.NewStdLogger(false, false)), nil
	default:
		return nil, fmt.Errorf("unknown bus backend: %s", cfg.Backend)
	}
}
