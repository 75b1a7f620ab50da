// Package logging builds the zap-backed logger shared by homegate.
//
// Components never import this package. Each declares the four-method
// Logger interface it needs and main passes a *Logger in; a nil logger
// becomes a no-op inside the component.
//
//	logging:
//	  level: info     # debug | info | warn | error
//	  format: json    # json | text
//	  output: stdout  # stdout | stderr
//
// Calls take a message and key/value pairs:
//
//	log.Info("catalog loaded", "devices", registry.Count())
//
// MQTT passwords, JWTs and InfluxDB tokens must never appear in a field.
package logging
