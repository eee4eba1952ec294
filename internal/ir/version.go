package ir

// Version constants for the compiled frame format and the engine.
const (
	// IRVersion is the frame schema version.
	IRVersion = "1"

	// EngineVersion is the framegraph engine version.
	EngineVersion = "0.1.0"
)
