package contenthash

import "fmt"

// DecodeError means the input is not a valid content-hash (or bytes32) encoding.
// Retrying cannot fix it.
type DecodeError struct {
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid content hash %q: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnsupportedMultihashError is returned by the bytes32 helpers for any
// multihash that is not sha2-256 with a 32 byte digest.
type UnsupportedMultihashError struct {
	Input  string
	Code   uint64
	Length int
}

func (e *UnsupportedMultihashError) Error() string {
	return fmt.Sprintf("unsupported multihash in %q: code 0x%x length %d, want sha2-256 (0x1220)", e.Input, e.Code, e.Length)
}
