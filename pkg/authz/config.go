package authz

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Config captures all inputs necessary to initialize the Casbin enforcer.
// Empty model and policy paths fall back to the built-in role model.
type Config struct {
	ModelPath    string
	PolicyPath   string
	FlagPath     string
	FlagMode     Mode
	Logger       *logrus.Logger
	FlagProvider FlagProvider
}

func (c Config) validate() error {
	if (c.ModelPath == "") != (c.PolicyPath == "") {
		return configError("model and policy paths must be set together")
	}
	return nil
}

func (c Config) normalized() Config {
	if c.ModelPath != "" {
		c.ModelPath = filepath.Clean(c.ModelPath)
		c.PolicyPath = filepath.Clean(c.PolicyPath)
	}
	if c.FlagPath != "" {
		c.FlagPath = filepath.Clean(c.FlagPath)
	}
	c.FlagMode = sanitizeMode(c.FlagMode)
	return c
}
