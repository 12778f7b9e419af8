package keystore

import (
	"encoding/json"
	"fmt"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// payloadVersion tags the plaintext layout inside the envelope.
const payloadVersion = 1

// payload is the decrypted content of a store object. Keys are encoded as
// base64 by encoding/json.
type payload struct {
	Version int               `json:"version"`
	Keys    map[string][]byte `json:"keys"`
}

func encode(keys map[string][]byte) ([]byte, error) {
	data, err := json.Marshal(payload{Version: payloadVersion, Keys: keys})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSerialization, err)
	}
	return data, nil
}

func decode(data []byte) (map[string][]byte, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSerialization, err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported payload version %d", model.ErrSerialization, p.Version)
	}

	keys := make(map[string][]byte, len(p.Keys))
	for id, key := range p.Keys {
		if len(key) != model.KeySize {
			return nil, fmt.Errorf("%w: entry %q holds %d bytes, want %d", model.ErrSerialization, id, len(key), model.KeySize)
		}
		keys[id] = key
	}
	return keys, nil
}
