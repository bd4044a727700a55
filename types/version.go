package types

// Version is the canonical project version.
// The CLI, the live event schema, and the retrieval protocol share this
// version.
const Version = "0.3.0"

// SchemaVersion is the version of the live event schema carried on every
// published event. Lockstep with Version.
const SchemaVersion = Version
