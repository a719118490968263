package bus

import (
	"fmt"
	"os"
)

// HistoryQueueName is the Redis list the History Persister drains:
// "chat_history_queue" unless REDIS_HISTORY_QUEUE_NAME is set (SPEC_FULL.md §6).
var HistoryQueueName = historyQueueName()

func historyQueueName() string {
	if name := os.Getenv("REDIS_HISTORY_QUEUE_NAME"); name != "" {
		return name
	}
	return "chat_history_queue"
}

// InputChannel returns the pub/sub channel a channel adapter publishes
// user turns on for agentID.
func InputChannel(agentID string) string {
	return fmt.Sprintf("agent:%s:input", agentID)
}

// OutputChannel returns the pub/sub channel an agent's Child Runtime
// publishes replies on for agentID.
func OutputChannel(agentID string) string {
	return fmt.Sprintf("agent:%s:output", agentID)
}

// ControlChannel returns the pub/sub channel used to deliver shutdown/
// restart commands to agentID's Child Runtime (or a channel adapter
// observing the same contract).
func ControlChannel(agentID string) string {
	return fmt.Sprintf("agent_control:%s", agentID)
}
