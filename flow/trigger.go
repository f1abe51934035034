package flow

import (
	"strings"

	"github.com/botforge/chatflow/model"
)

// MatchTrigger reports whether an inbound event can start a new
// execution of this flow. The "no prior execution" rule for always-on
// flows is the engine's to enforce; this only checks the trigger shape.
func MatchTrigger(def *model.FlowDef, event *model.InboundEvent) bool {
	if !def.Active {
		return false
	}
	switch def.Trigger.Type {
	case model.TRIGGER_TYPE_KEYWORD:
		if event.Text == "" {
			return false
		}
		text := strings.ToLower(event.Text)
		for _, keyword := range def.Trigger.Keywords {
			if keyword != "" && strings.Contains(text, strings.ToLower(keyword)) {
				return true
			}
		}
		return false
	case model.TRIGGER_TYPE_ALWAYS:
		return event.Text != "" || event.ChoiceId != ""
	case model.TRIGGER_TYPE_QR_CODE, model.TRIGGER_TYPE_LINK:
		return event.Code != "" && event.Code == def.Trigger.Code
	case model.TRIGGER_TYPE_MANUAL:
		return false
	}
	return false
}
