package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClient()
	c.normalizeTransport()
	c.normalizeLogging()
	c.normalizeMetrics()
	c.normalizeNotifications()
	c.normalizeResources()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeClient() {
	c.Client.Name = strings.TrimSpace(c.Client.Name)
	if c.Client.Name == "" {
		c.Client.Name = defaultClientName
	}
	c.Client.Model = strings.TrimSpace(c.Client.Model)
	c.Client.Manufacturer = strings.TrimSpace(c.Client.Manufacturer)
}

func (c *Config) normalizeTransport() {
	if value, ok := os.LookupEnv(environmentBackendOverride); ok && strings.TrimSpace(value) != "" {
		c.Transport.Backend = value
	}
	c.Transport.Backend = strings.ToLower(strings.TrimSpace(c.Transport.Backend))
	if c.Transport.Backend == "" {
		c.Transport.Backend = defaultBackend
	}
	if c.Transport.PollIntervalMS <= 0 {
		c.Transport.PollIntervalMS = defaultPollIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeResources() {
	for i := range c.VirtualInputs {
		normalizeVirtualPort(&c.VirtualInputs[i])
	}
	for i := range c.VirtualOutputs {
		normalizeVirtualPort(&c.VirtualOutputs[i])
	}
	for i := range c.InputConnections {
		normalizeConnection(&c.InputConnections[i])
	}
	for i := range c.OutputConnections {
		normalizeConnection(&c.OutputConnections[i])
	}
	for i := range c.ThruConnections {
		thru := &c.ThruConnections[i]
		thru.Tag = strings.TrimSpace(thru.Tag)
		thru.OwnerID = strings.TrimSpace(thru.OwnerID)
		thru.Outputs = trimList(thru.Outputs)
		thru.Inputs = trimList(thru.Inputs)
	}
}

func normalizeVirtualPort(port *VirtualPort) {
	port.Tag = strings.TrimSpace(port.Tag)
	port.Name = strings.TrimSpace(port.Name)
	if port.Name == "" {
		port.Name = port.Tag
	}
}

func normalizeConnection(conn *Connection) {
	conn.Tag = strings.TrimSpace(conn.Tag)
	conn.Mode = strings.ToLower(strings.TrimSpace(conn.Mode))
	if conn.Mode == "" {
		conn.Mode = defaultConnectionMode
	}
	conn.Names = trimList(conn.Names)
	conn.DisplayNames = trimList(conn.DisplayNames)
	conn.ExcludeNames = trimList(conn.ExcludeNames)
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
