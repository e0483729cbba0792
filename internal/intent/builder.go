package intent

import (
	"github.com/jobichi/casita/internal/snapshot"
	"github.com/jobichi/casita/internal/topics"
)

// motionCommands maps motion intents to the wire commands motion
// actuators understand.
var motionCommands = map[Intent]string{
	IntentForward:  "OPEN",
	IntentBackward: "CLOSE",
	IntentStop:     "STOP",
}

// defaultSpeed rides along with OPEN and CLOSE. STOP carries none.
const defaultSpeed = 100

// Build produces the set payload for (intent, target), or ok=false when
// the intent does not apply to the target's component type.
func Build(intent Intent, target snapshot.Component) (map[string]any, bool) {
	cmd := map[string]any{
		"device": target.Device,
		"type":   string(target.Type),
		"id":     target.ID,
	}

	switch target.Type {
	case topics.Sensor:
		switch intent {
		case IntentEnable:
			cmd["enable"] = true
		case IntentDisable:
			cmd["enable"] = false
		default:
			return nil, false
		}
		return cmd, true

	case topics.Actuator:
		switch intent {
		case IntentOn:
			cmd["state"] = true
		case IntentOff:
			cmd["state"] = false
		case IntentForward, IntentBackward, IntentStop:
			wire := motionCommands[intent]
			cmd["command"] = wire
			if wire != "STOP" {
				cmd["speed"] = defaultSpeed
			}
		default:
			return nil, false
		}
		return cmd, true
	}
	return nil, false
}
