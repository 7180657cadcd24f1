// Package config loads the gateway's engine settings from a YAML file:
// listener address, body size limit, worker pool sizing and the NATS
// connection used for event publishing and the route document bucket.
// Route documents themselves are not part of these settings; they are
// owned by the configuration store and loaded through the registry.
package config
