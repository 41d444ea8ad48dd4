package clock

import "go.uber.org/fx"

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
	fx.Provide(func(c *SystemClock) Clock { return c }),
	fx.Provide(func(c *SystemClock) Stepper { return c }),
)
