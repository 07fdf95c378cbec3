package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/signing"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	signKeyring  string = ""
	keygenOutput string = ""
	keygenPublic string = ""
)

func keyringPath() (string, error) {
	if signKeyring != "" {
		return signKeyring, nil
	}
	if p := config.Global().Signing.Keyring; p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no keyring: pass --keyring or set signing.keyring")
}

func loadKeyring() (*signing.Keyring, error) {
	path, err := keyringPath()
	if err != nil {
		return nil, err
	}
	return signing.LoadKeyring(path)
}

// createSignCommand creates the sign subcommand
func createSignCommand() *cobra.Command {
	signCmd := &cobra.Command{
		Use:   "sign FILE...",
		Short: "Write armored detached OpenPGP signatures next to files",
		Long: `Sign writes FILE.asc for each FILE with the first private key of the
keyring. An encrypted key is unlocked with signing.passphrase, which is best
given through the TAPKEEPER_SIGNING_PASSPHRASE environment variable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeSign,
	}
	signCmd.Flags().StringVar(&signKeyring, "keyring", "", "Keyring holding the private key (default from config)")
	return signCmd
}

// executeSign handles the sign command logic
func executeSign(cmd *cobra.Command, args []string) error {
	kr, err := loadKeyring()
	if err != nil {
		return err
	}
	passphrase := config.Global().Signing.Passphrase
	for _, path := range args {
		sigPath, err := kr.SignFile(path, passphrase)
		if err != nil {
			return fmt.Errorf("signing %s: %w", path, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), sigPath)
	}
	return nil
}

// createVerifySignatureCommand creates the verify-signature subcommand
func createVerifySignatureCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify-signature FILE [SIGNATURE]",
		Short: "Check a detached OpenPGP signature against the keyring",
		Long:  `Verify-signature checks SIGNATURE (default FILE.asc) against FILE.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  executeVerifySignature,
	}
	verifyCmd.Flags().StringVar(&signKeyring, "keyring", "", "Keyring of trusted keys (default from config)")
	return verifyCmd
}

// executeVerifySignature handles the verify-signature command logic
func executeVerifySignature(cmd *cobra.Command, args []string) error {
	kr, err := loadKeyring()
	if err != nil {
		return err
	}
	sigPath := args[0] + ".asc"
	if len(args) == 2 {
		sigPath = args[1]
	}
	signer, err := kr.VerifyFile(args[0], sigPath)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: good signature from %s (key %s)\n",
		args[0], strings.Join(signer.Identities, ", "), signer.KeyID)
	return nil
}

// createKeygenCommand creates the keygen subcommand
func createKeygenCommand() *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen NAME EMAIL",
		Short: "Generate a release signing key",
		Long: `Keygen creates a new OpenPGP key and writes the private keyring to
--output. With --public the public key is exported as well, ready to be
published for tap users. When signing.passphrase is set the private key is
encrypted with it; weak passphrases are refused.`,
		Args: cobra.ExactArgs(2),
		RunE: executeKeygen,
	}
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Private keyring file to write")
	keygenCmd.Flags().StringVar(&keygenPublic, "public", "", "Public key file to write")
	_ = keygenCmd.MarkFlagRequired("output")
	return keygenCmd
}

// executeKeygen handles the keygen command logic
func executeKeygen(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	kr, err := signing.Generate(args[0], args[1])
	if err != nil {
		return err
	}
	passphrase := config.Global().Signing.Passphrase
	if passphrase != "" {
		if err := kr.Protect(passphrase); err != nil {
			return err
		}
		log.Infof("Private key is protected with signing.passphrase")
	}

	var priv bytes.Buffer
	if err := kr.ExportPrivate(&priv); err != nil {
		return err
	}
	if err := renameio.WriteFile(keygenOutput, priv.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	log.Infof("Wrote private keyring to %s", keygenOutput)

	if keygenPublic != "" {
		var pub bytes.Buffer
		if err := kr.ExportPublic(&pub); err != nil {
			return err
		}
		if err := renameio.WriteFile(keygenPublic, pub.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing public key: %w", err)
		}
		log.Infof("Wrote public key to %s", keygenPublic)
	}

	// round-trip a probe signature through the new key
	var probe bytes.Buffer
	if err := kr.Sign(&probe, strings.NewReader(args[1]), passphrase); err != nil {
		return err
	}
	signer, err := kr.Verify(strings.NewReader(args[1]), probe.Bytes())
	if err != nil {
		return fmt.Errorf("generated key does not verify: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", signer.KeyID, signer.Fingerprint)
	return nil
}
