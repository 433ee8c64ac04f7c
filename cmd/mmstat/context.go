package main

import (
	"strings"
	"sync"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// commandContext loads the configuration once per invocation. The
// monitor never creates directories or writes logs; it only reads what
// the workers left behind.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", path, err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}
