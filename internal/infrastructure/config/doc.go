// Package config loads homegate's YAML configuration.
//
// Load starts from built-in defaults, overlays the file, then applies
// HOMEGATE_* environment variables (NODE_RED_URL is honoured for the
// device catalog) and finally validates the result, reporting every
// problem at once.
//
// Secrets (security.jwt.secret, mqtt.auth.password, influxdb.token) are
// expected from the environment.
//
//	cfg, err := config.Load(os.Getenv("HOMEGATE_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	evaluator := schedule.NewEvaluator(schedule.Config{Location: cfg.Location(), ...})
package config
