package cli

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/crypto"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted credentials",
}

var secretsEncryptCmd = &cobra.Command{
	Use:   "encrypt <value>",
	Short: "Encrypt a credential for use in the configuration file",
	Long: `Encrypt a credential with the passphrase from SHELFSTREAM_SECRET_KEY.
The printed enc:v1: value can be stored in the configuration file in
place of the plaintext; it is decrypted transparently at load time.`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretsEncrypt,
}

func init() {
	secretsCmd.AddCommand(secretsEncryptCmd)
	rootCmd.AddCommand(secretsCmd)
}

func runSecretsEncrypt(cmd *cobra.Command, args []string) error {
	passphrase := os.Getenv(config.SecretKeyEnv)
	if passphrase == "" {
		return fmt.Errorf("%s is not set", config.SecretKeyEnv)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	var salt []byte
	if cfg.SecretSalt != "" {
		salt, err = base64.StdEncoding.DecodeString(cfg.SecretSalt)
		if err != nil {
			return fmt.Errorf("secret_salt is not valid base64: %w", err)
		}
	} else {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "No secret_salt in configuration; add this one:\n  \"secret_salt\": %q\n",
			base64.StdEncoding.EncodeToString(salt))
	}

	store := crypto.NewCredentialStore(passphrase, salt)
	encrypted, err := store.Encrypt(args[0])
	if err != nil {
		return err
	}
	fmt.Println(encrypted)
	return nil
}
