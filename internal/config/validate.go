package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateResources(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClient() error {
	if strings.TrimSpace(c.Client.Name) == "" {
		return errors.New("client.name must be set")
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Transport.Backend {
	case BackendMemory, BackendGoMIDI:
	default:
		return fmt.Errorf("transport.backend must be %q or %q, got %q", BackendMemory, BackendGoMIDI, c.Transport.Backend)
	}
	if c.Transport.PollIntervalMS < minPollIntervalMS {
		return fmt.Errorf("transport.poll_interval_ms must be at least %d", minPollIntervalMS)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && !strings.Contains(c.Metrics.Bind, ":") {
		return errors.New("metrics.bind must be host:port when metrics.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL; got %q", topic)
	}
	return nil
}

func (c *Config) validateResources() error {
	seen := make(map[string]struct{})
	checkTag := func(section, tag string) error {
		if tag == "" {
			return fmt.Errorf("%s.tag must be set", section)
		}
		key := section + "/" + tag
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s.tag %q must be unique", section, tag)
		}
		seen[key] = struct{}{}
		return nil
	}

	for _, port := range c.VirtualInputs {
		if err := checkTag("virtual_inputs", port.Tag); err != nil {
			return err
		}
	}
	for _, port := range c.VirtualOutputs {
		if err := checkTag("virtual_outputs", port.Tag); err != nil {
			return err
		}
	}
	for _, conn := range c.InputConnections {
		if err := checkTag("input_connections", conn.Tag); err != nil {
			return err
		}
		if err := validateConnection("input_connections", conn); err != nil {
			return err
		}
	}
	for _, conn := range c.OutputConnections {
		if err := checkTag("output_connections", conn.Tag); err != nil {
			return err
		}
		if err := validateConnection("output_connections", conn); err != nil {
			return err
		}
	}
	for _, thru := range c.ThruConnections {
		if err := checkTag("thru_connections", thru.Tag); err != nil {
			return err
		}
		if len(thru.Outputs) == 0 || len(thru.Inputs) == 0 {
			return fmt.Errorf("thru_connections %q must name at least one output and one input", thru.Tag)
		}
		if len(thru.Outputs) > maxThruEndpointsPerSide || len(thru.Inputs) > maxThruEndpointsPerSide {
			return fmt.Errorf("thru_connections %q must name at most %d outputs and %d inputs", thru.Tag, maxThruEndpointsPerSide, maxThruEndpointsPerSide)
		}
	}
	return nil
}

func validateConnection(section string, conn Connection) error {
	switch conn.Mode {
	case ModeCriteria, ModeAll:
	default:
		return fmt.Errorf("%s %q: mode must be %q or %q", section, conn.Tag, ModeCriteria, ModeAll)
	}
	for _, id := range conn.UniqueIDs {
		if id == 0 {
			return fmt.Errorf("%s %q: unique_ids must not contain 0", section, conn.Tag)
		}
	}
	return nil
}
