package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/awnumar/memguard"

	"github.com/dtroode/gophkeeper-vault/internal/cipher"
	"github.com/dtroode/gophkeeper-vault/internal/logger"
	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// FileCipher encrypts and decrypts whole objects held in a Storage.
type FileCipher struct {
	storage model.Storage
	cipher  *cipher.Cipher
	logger  *logger.Logger
}

func NewFileCipher(storage model.Storage, cipher *cipher.Cipher, logger *logger.Logger) *FileCipher {
	return &FileCipher{
		storage: storage,
		cipher:  cipher,
		logger:  logger,
	}
}

// EncryptFile reads src, seals it under key and writes the envelope to dst.
func (s *FileCipher) EncryptFile(ctx context.Context, src, dst string, key []byte) error {
	s.logger.Debug("File service: encrypting", "src", src, "dst", dst)

	data, err := s.read(ctx, src)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(data)

	envelope, err := s.cipher.Encrypt(data, key)
	if err != nil {
		s.logger.Error("File service: failed to encrypt",
			"src", src,
			"error", err.Error())
		return fmt.Errorf("failed to encrypt %q: %w", src, err)
	}

	if err := s.write(ctx, dst, envelope); err != nil {
		return err
	}

	s.logger.Info("File service: encrypted", "src", src, "dst", dst, "size", len(envelope))
	return nil
}

// DecryptFile reads the envelope at src, opens it with key and writes the
// plaintext to dst. Nothing is written when authentication fails.
func (s *FileCipher) DecryptFile(ctx context.Context, src, dst string, key []byte) error {
	s.logger.Debug("File service: decrypting", "src", src, "dst", dst)

	envelope, err := s.read(ctx, src)
	if err != nil {
		return err
	}

	plaintext, err := s.cipher.Decrypt(envelope, key)
	if err != nil {
		s.logger.Warn("File service: failed to decrypt", "src", src)
		return fmt.Errorf("failed to decrypt %q: %w", src, err)
	}
	defer memguard.WipeBytes(plaintext)

	if err := s.write(ctx, dst, plaintext); err != nil {
		return err
	}

	s.logger.Info("File service: decrypted", "src", src, "dst", dst, "size", len(plaintext))
	return nil
}

// EncryptHex seals text under key and returns the envelope hex-encoded.
func (s *FileCipher) EncryptHex(text []byte, key []byte) (string, error) {
	envelope, err := s.cipher.Encrypt(text, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt text: %w", err)
	}
	return hex.EncodeToString(envelope), nil
}

// DecryptHex opens a hex-encoded envelope. Input that is not valid hex is
// reported as an authentication failure, like any other damaged envelope.
func (s *FileCipher) DecryptHex(encoded string, key []byte) ([]byte, error) {
	envelope, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", model.ErrAuthenticationFailure)
	}
	plaintext, err := s.cipher.Decrypt(envelope, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt text: %w", err)
	}
	return plaintext, nil
}

func (s *FileCipher) read(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.storage.Download(ctx, name)
	if err != nil {
		s.logger.Error("File service: failed to open source",
			"src", name,
			"error", err.Error())
		return nil, fmt.Errorf("%w: failed to open %q: %w", model.ErrIO, name, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.Error("File service: failed to close source", "src", name, "error", err)
		}
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %q: %w", model.ErrIO, name, err)
	}
	return data, nil
}

func (s *FileCipher) write(ctx context.Context, name string, data []byte) error {
	if err := s.storage.Upload(ctx, name, bytes.NewReader(data)); err != nil {
		s.logger.Error("File service: failed to write output",
			"dst", name,
			"error", err.Error())
		return fmt.Errorf("%w: failed to write %q: %w", model.ErrIO, name, err)
	}
	return nil
}
