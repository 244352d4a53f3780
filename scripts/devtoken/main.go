// Command devtoken creates a local RSA key pair and mints bearer tokens for
// exercising OIDC write auth against a development issuer.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

const (
	privateKeyFile = "jwt_private.pem"
	publicKeyFile  = "jwt_public.pem"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "devtoken",
		Short:        "Development keys and bearer tokens for showcatalog write auth",
		SilenceUsage: true,
	}
	root.AddCommand(newKeysCommand(stdout), newMintCommand(stdout))
	return root
}

func newKeysCommand(stdout io.Writer) *cobra.Command {
	var (
		dir  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Write an RSA key pair as PEM files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privatePath, publicPath, err := writeKeyPair(dir, bits)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s and %s\n", privatePath, publicPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".auth", "Output directory for keys")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	return cmd
}

// mintOptions are the claims of a minted token.
type mintOptions struct {
	Issuer   string
	Audience string
	Subject  string
	KeyID    string
	Expires  time.Duration
}

func newMintCommand(stdout io.Writer) *cobra.Command {
	subject := "showcatalog-dev"
	if current, err := user.Current(); err == nil {
		subject = current.Username
	}

	var (
		keyPath string
		opts    mintOptions
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Print a signed RS256 token for POST /shows/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := loadPrivateKey(keyPath)
			if err != nil {
				return err
			}
			signed, err := mint(key, opts, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", filepath.Join(".auth", privateKeyFile), "Path to RSA private key (PEM)")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", "https://localhost:9000", "Token issuer")
	cmd.Flags().StringVar(&opts.Audience, "audience", "showcatalog", "Token audience, comma separated")
	cmd.Flags().StringVar(&opts.Subject, "subject", subject, "Token subject")
	cmd.Flags().StringVar(&opts.KeyID, "kid", "local-key", "Key ID header")
	cmd.Flags().DurationVar(&opts.Expires, "expires", time.Hour, "Token lifetime")
	return cmd
}

func mint(key *rsa.PrivateKey, opts mintOptions, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": splitList(opts.Audience),
		"iat": now.Unix(),
		"exp": now.Add(opts.Expires).Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = opts.KeyID
	return token.SignedString(key)
}

func writeKeyPair(dir string, bits int) (string, string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("failed to create dir: %w", err)
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	publicBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	privatePath := filepath.Join(dir, privateKeyFile)
	publicPath := filepath.Join(dir, publicKeyFile)
	if err := writePEM(privatePath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey), 0o600); err != nil {
		return "", "", err
	}
	if err := writePEM(publicPath, "PUBLIC KEY", publicBytes, 0o644); err != nil {
		return "", "", err
	}
	return privatePath, publicPath, nil
}

func writePEM(path, pemType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// loadPrivateKey accepts PKCS#1 or PKCS#8 RSA keys.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return rsaKey, nil
}

func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
