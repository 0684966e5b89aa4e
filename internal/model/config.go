package model

// AnimationConfig drives the dashboard's idle animation.
type AnimationConfig struct {
	AnimationEnabled bool `json:"animationEnabled"`
	IntervalSeconds  int  `json:"intervalSeconds" validate:"gte=1"`
	DurationSeconds  int  `json:"durationSeconds" validate:"gte=1"`
}

func DefaultAnimationConfig() AnimationConfig {
	return AnimationConfig{
		AnimationEnabled: true,
		IntervalSeconds:  30,
		DurationSeconds:  6,
	}
}
