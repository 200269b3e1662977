package log

// Config for log
type Config struct {
	// Environment defining the log format ("production" or "development").
	Environment LogEnvironment `jsonschema:"enum=production,enum=development" mapstructure:"Environment"`
	// Level of log. As lower value more logs are going to be generated
	Level string `jsonschema:"enum=debug,enum=info,enum=warn,enum=error,enum=dpanic,enum=panic,enum=fatal" mapstructure:"Level"` //nolint:lll
	// Outputs
	Outputs []string `mapstructure:"Outputs"`
}
