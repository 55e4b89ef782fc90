package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.ToolParser.Dialect {
	case "", "mistral", "hermes":
		// valid
	default:
		errs = append(errs, fmt.Errorf("tool_parser.tool_parser must be \"mistral\" or \"hermes\", got %q", c.ToolParser.Dialect))
	}

	if c.ToolParser.AutoToolChoice && c.ToolParser.Dialect == "" {
		errs = append(errs, errors.New("tool_parser.auto_tool_choice requires tool_parser.tool_parser to name a dialect"))
	}

	if c.ToolParser.ResponseRole == "" {
		errs = append(errs, errors.New("tool_parser.response_role is required"))
	}

	return errors.Join(errs...)
}
