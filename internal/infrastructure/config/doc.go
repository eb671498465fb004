// Package config handles loading and validating cloud bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CLOUDBRIDGE_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling
//
// Security Considerations:
//   - The cloud session cookie and CSRF token grant full account access;
//     set them via environment variables rather than the file
//   - The config file should have restricted permissions (0600)
//   - Config.String redacts secrets and is the only form that may be logged
//
// Usage:
//
//	cfg, err := config.Load("configs/cloudbridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.Name)
package config
