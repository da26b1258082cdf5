package keyvault

import "errors"

// Key vault errors.
var (
	ErrNotConfigured  = errors.New("site has no signing keypair")
	ErrKeypairExists  = errors.New("site already has a signing keypair")
	ErrGeneration     = errors.New("generate signing keypair")
	ErrSealedKey      = errors.New("sealed private key is corrupt or was sealed with another key")
	ErrMasterKeyShort = errors.New("master key must be at least 32 bytes")
)
