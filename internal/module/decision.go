package module

// Decide computes the actuation command for one sensor sample against a
// module's configured targets.
//
// Each channel is independent: the actuator is driven ON exactly when a
// target is configured and the sampled value is strictly below it. A missing
// target, or a sample at or above the target, yields OFF. The comparison is
// pure; it reads no stored state and never fails.
func Decide(targets Targets, sample Sample) Actuation {
	return Actuation{
		Temperature: decideChannel(targets.Temperature, sample.Temperature),
		Humidity:    decideChannel(targets.Humidity, sample.Humidity),
		Light:       decideChannel(targets.Lighting, sample.Light),
	}
}

func decideChannel(target *float64, value float64) Signal {
	if target != nil && value < *target {
		return SignalOn
	}
	return SignalOff
}
