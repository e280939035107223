package rules

import (
	"sync"

	"github.com/gyaneshwarpardhi/fishrules/internal/config"
)

// Compiler pairs with config.Loader: Check is the loader's acceptance hook
// and keeps the Set it built, and For hands that Set back for the config
// the loader then installs, so each accepted file is compiled once.
type Compiler struct {
	mu  sync.Mutex
	cfg *config.RuleConfig
	set *Set
}

// Check builds cfg and remembers the result.
func (c *Compiler) Check(cfg *config.RuleConfig) error {
	set, err := Build(cfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg, c.set = cfg, set
	c.mu.Unlock()
	return nil
}

// For returns the Set for cfg, reusing the one Check built when cfg is the
// config it last accepted.
func (c *Compiler) For(cfg *config.RuleConfig) (*Set, error) {
	c.mu.Lock()
	if cfg == c.cfg {
		set := c.set
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()
	return Build(cfg)
}
