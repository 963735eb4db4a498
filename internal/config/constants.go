package config

// Default file and environment names.
const (
	DefaultConfigFile = "hostbridge.yaml"
	EnvPrefix         = "HOSTBRIDGE"
)

// Script-visible constants.
const (
	// NullSentinel is the text that stands for a nil foreign value, both in
	// results and in arguments.
	NullSentinel = "null"
	// HandleSeparator joins a type name and a sequence number in generated
	// handle names ("Box#12").
	HandleSeparator = "#"
	// CommandName is the name the object command is registered under.
	CommandName = "object"
)

// Engine limits.
const (
	DefaultMaxDepth = 200
)

// Null-object policy names used in configuration.
const (
	NullPolicyFail   = "fail"
	NullPolicyIgnore = "ignore"
)
