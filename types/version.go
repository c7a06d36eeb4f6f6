package types

// Version is the canonical project version.
// All components (bridge, wire contract, CLI) share this version per the
// lockstep versioning policy. The registry folds this version into every
// identifier, so a version bump invalidates all identifiers at once.
//
// This version is authoritative. Contract docs must reference this constant.
const Version = "0.3.0"
