package vault

import "errors"

// ErrCorrupt maps to the §7 VaultCorrupt kind: non-UTF-8 file content or
// an AEAD open failure.
var ErrCorrupt = errors.New("vault file is corrupt")

// ErrEnvironment maps to §7 EnvironmentInvalid: the config directory
// could not be created.
var ErrEnvironment = errors.New("credential environment is invalid")
