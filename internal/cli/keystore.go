package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dtroode/gophkeeper-vault/internal/keystore"
	"github.com/dtroode/gophkeeper-vault/internal/model"
	"github.com/dtroode/gophkeeper-vault/internal/storage/file"
)

func (a *App) keystoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keystore",
		Aliases: []string{"ks"},
		Short:   "Manage keys in the encrypted key store",
		Long: `Store and look up 32-byte keys in a password-protected key store. Every key
is saved under "<id>_<UTC timestamp>" so earlier keys with the same id are kept.`,
	}

	cmd.PersistentFlags().StringVar(&a.storeName, "store", "", "key store name (or use KEYSTORE_PATH env var)")

	cmd.AddCommand(
		a.keystorePutCommand(),
		a.keystoreGenerateCommand(),
		a.keystoreGetCommand(),
		a.keystoreLatestCommand(),
		a.keystoreListCommand(),
	)

	return cmd
}

func (a *App) keystorePutCommand() *cobra.Command {
	var keyHex string

	cmd := &cobra.Command{
		Use:   "put <id>",
		Short: "Store a hex-encoded 32-byte key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(keyHex)
			if err != nil {
				return fmt.Errorf("invalid hex key: %w", err)
			}
			defer memguard.WipeBytes(key)

			return a.withStore(cmd.Context(), func(s *keystore.Store) error {
				vid, err := s.StoreKey(cmd.Context(), args[0], key)
				if err != nil {
					return err
				}
				cmd.Println(vid.String())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&keyHex, "hex", "", "key as 64 hex characters")
	_ = cmd.MarkFlagRequired("hex")

	return cmd
}

func (a *App) keystoreGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate [id]",
		Short: "Generate and store a random 32-byte key",
		Long:  `Generate a random 32-byte key and store it. Without an id a random UUID is used.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.NewString()
			if len(args) == 1 {
				id = args[0]
			}

			key := make([]byte, model.KeySize)
			if _, err := io.ReadFull(a.rand, key); err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			defer memguard.WipeBytes(key)

			return a.withStore(cmd.Context(), func(s *keystore.Store) error {
				vid, err := s.StoreKey(cmd.Context(), id, key)
				if err != nil {
					return err
				}
				cmd.Println(vid.String())
				return nil
			})
		},
	}
}

func (a *App) keystoreGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <versioned-id>",
		Short: "Print the key stored under an exact versioned id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *keystore.Store) error {
				key, ok := s.RetrieveKey(args[0])
				if !ok {
					return fmt.Errorf("key %q: %w", args[0], model.ErrNotFound)
				}
				defer memguard.WipeBytes(key)

				cmd.Println(hex.EncodeToString(key))
				return nil
			})
		},
	}
}

func (a *App) keystoreLatestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <id>",
		Short: "Print the most recent key stored under an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *keystore.Store) error {
				entry, ok := s.GetLatest(args[0])
				if !ok {
					return fmt.Errorf("key %q: %w", args[0], model.ErrNotFound)
				}
				defer memguard.WipeBytes(entry.Key)

				cmd.Printf("%s %s\n", entry.ID.String(), hex.EncodeToString(entry.Key))
				return nil
			})
		},
	}
}

func (a *App) keystoreListCommand() *cobra.Command {
	var showKeys bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *keystore.Store) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				if showKeys {
					fmt.Fprintln(w, "ID\tVERSION\tKEY")
				} else {
					fmt.Fprintln(w, "ID\tVERSION")
				}

				for _, entry := range s.List() {
					version := entry.ID.Version.Format(model.VersionLayout)
					if showKeys {
						fmt.Fprintf(w, "%s\t%s\t%s\n", entry.ID.Base, version, hex.EncodeToString(entry.Key))
					} else {
						fmt.Fprintf(w, "%s\t%s\n", entry.ID.Base, version)
					}
					memguard.WipeBytes(entry.Key)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "print key material")

	return cmd
}

// withStore opens the configured key store for the duration of fn. With the
// file backend and KEYSTORE_LOCK set the store file is locked against other
// processes first.
func (a *App) withStore(ctx context.Context, fn func(s *keystore.Store) error) error {
	password, err := a.requirePassword()
	if err != nil {
		return err
	}

	storage, release, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer release()

	name := a.storeName
	if name == "" {
		name = a.cfg.KeyStore.Path
	}

	if fs, ok := storage.(*file.Storage); ok && a.cfg.KeyStore.Lock {
		l, err := fs.Lock(name)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrIO, err)
		}
		defer func() {
			if err := l.Close(); err != nil {
				a.logger.Error("failed to release key store lock", "store", name, "error", err)
			}
		}()
	}

	s, err := keystore.Open(ctx, storage, name, password,
		keystore.WithKDFParams(a.cfg.KDF.Params()),
		keystore.WithSaltPhrase(a.cfg.KeyStore.SaltPhrase),
		keystore.WithRandom(a.rand),
		keystore.WithClock(a.clock),
		keystore.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}
