package signboard

import "fmt"

// Topic and key helpers
//
// All bus topics and store keys are namespaced by session so independent
// user sessions on one broker never see each other's traffic.
//
// Topic pattern: signboard:{session}:{kind}
// Key pattern:   signboard:{session}:{entity}

// CommandTopic returns the bus topic commands are published on.
// Pattern: signboard:{session}:commands
func CommandTopic(session string) string {
	return fmt.Sprintf("signboard:%s:commands", session)
}

// ResponseTopic returns the bus topic responses are published on.
// Pattern: signboard:{session}:responses
func ResponseTopic(session string) string {
	return fmt.Sprintf("signboard:%s:responses", session)
}

// SnapshotKey returns the store key holding the persisted collection.
// Pattern: signboard:{session}:signboards
func SnapshotKey(session string) string {
	return fmt.Sprintf("signboard:%s:signboards", session)
}
