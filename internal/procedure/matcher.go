package procedure

import (
	"strings"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// FindMatching scans procedures in storage order and returns the first whose
// trigger matches userMessage.
func FindMatching(procedures []model.Procedure, userMessage string) (model.Procedure, bool) {
	lower := strings.ToLower(userMessage)
	for _, p := range procedures {
		if matches(p.Trigger, lower) {
			return p, true
		}
	}
	return model.Procedure{}, false
}

func matches(trigger model.Trigger, lowerMessage string) bool {
	switch trigger.Type {
	case model.TriggerKeyword:
		for _, kw := range strings.Split(trigger.Condition, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lowerMessage, kw) {
				return true
			}
		}
		return false
	case model.TriggerIntent:
		return strings.Contains(lowerMessage, strings.ToLower(strings.TrimSpace(trigger.Condition)))
	case model.TriggerManual:
		return false
	default:
		return false
	}
}
