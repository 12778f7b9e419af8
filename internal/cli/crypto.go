package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/dtroode/gophkeeper-vault/internal/cipher"
	"github.com/dtroode/gophkeeper-vault/internal/kdf"
	"github.com/dtroode/gophkeeper-vault/internal/model"
	"github.com/dtroode/gophkeeper-vault/internal/service"
)

const (
	encryptedSuffix = ".enc"
	decryptedSuffix = ".dec"
)

func (a *App) deriveCommand() *cobra.Command {
	var (
		saltPhrase string
		randomSalt bool
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a 32-byte key from the password",
		Long: `Derive a 32-byte Argon2id key from the password and print it with its salt.
The salt is taken from the salt phrase, or drawn at random with --random-salt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.requirePassword()
			if err != nil {
				return err
			}

			var phrase *string
			if !randomSalt {
				phrase = &saltPhrase
			}

			key, salt, err := kdf.New(a.cfg.KDF.Params(), kdf.WithRandom(a.rand)).Derive(password, phrase)
			if err != nil {
				return err
			}
			defer memguard.WipeBytes(key)

			cmd.Printf("key: %s\nsalt: %s\n", hex.EncodeToString(key), hex.EncodeToString(salt))
			return nil
		},
	}

	cmd.Flags().StringVar(&saltPhrase, "salt-phrase", a.cfg.CLI.SaltPhrase, "phrase the salt is hashed from")
	cmd.Flags().BoolVar(&randomSalt, "random-salt", false, "use a random salt instead of the salt phrase")
	cmd.MarkFlagsMutuallyExclusive("salt-phrase", "random-salt")

	return cmd
}

func (a *App) encryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <file|text>",
		Short: "Encrypt a file or a short text",
		Long: `Encrypt a file into "<file>.enc". When the argument does not name an existing
file it is encrypted as text and the envelope is printed as hex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFileCipher(cmd.Context(), func(svc *service.FileCipher, key []byte, isFile func(string) (bool, error)) error {
				input := args[0]
				ok, err := isFile(input)
				if err != nil {
					return err
				}

				if ok {
					output := input + encryptedSuffix
					if err := svc.EncryptFile(cmd.Context(), input, output, key); err != nil {
						return err
					}
					cmd.Printf("Encrypted file saved to %s\n", output)
					return nil
				}

				encoded, err := svc.EncryptHex([]byte(input), key)
				if err != nil {
					return err
				}
				cmd.Println(encoded)
				return nil
			})
		},
	}
}

func (a *App) decryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <file|hex>",
		Short: "Decrypt a file or a hex envelope",
		Long: `Decrypt a file into "<file>.dec". When the argument does not name an existing
file it is decoded as a hex envelope and the plaintext is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFileCipher(cmd.Context(), func(svc *service.FileCipher, key []byte, isFile func(string) (bool, error)) error {
				input := args[0]
				ok, err := isFile(input)
				if err != nil {
					return err
				}

				if ok {
					output := input + decryptedSuffix
					if err := svc.DecryptFile(cmd.Context(), input, output, key); err != nil {
						return err
					}
					cmd.Printf("Decrypted file saved to %s\n", output)
					return nil
				}

				plaintext, err := svc.DecryptHex(input, key)
				if err != nil {
					return err
				}
				defer memguard.WipeBytes(plaintext)
				cmd.Println(string(plaintext))
				return nil
			})
		},
	}
}

// withFileCipher derives the command key from the password and the CLI salt
// phrase and hands fn a FileCipher over the configured backend.
func (a *App) withFileCipher(ctx context.Context, fn func(svc *service.FileCipher, key []byte, isFile func(string) (bool, error)) error) error {
	password, err := a.requirePassword()
	if err != nil {
		return err
	}

	phrase := a.cfg.CLI.SaltPhrase
	key, _, err := kdf.New(a.cfg.KDF.Params()).Derive(password, &phrase)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}
	defer memguard.WipeBytes(key)

	storage, release, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer release()

	svc := service.NewFileCipher(storage, cipher.New(cipher.WithRandom(a.rand)), a.logger)
	isFile := func(name string) (bool, error) {
		ok, err := storage.Exists(ctx, name)
		if err != nil {
			return false, fmt.Errorf("%w: failed to check %q: %w", model.ErrIO, name, err)
		}
		return ok, nil
	}

	return fn(svc, key, isFile)
}
