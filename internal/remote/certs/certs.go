// Package certs manages the client certificate/key pair used to authenticate
// against an Android TV. One pair exists per paired device; a shared default
// pair is only used while pairing a device whose identifier is not yet known.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	keyBits  = 2048
	validFor = 10 * 365 * 24 * time.Hour
)

// GenerateIfMissing creates a self-signed client certificate and key in PEM
// format at the given paths if either file is missing. Returns true if a new
// pair was written.
func GenerateIfMissing(certFile, keyFile, commonName string) (bool, error) {
	if fileExists(certFile) && fileExists(keyFile) {
		return false, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return false, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return false, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"atvbridge"},
		},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return false, fmt.Errorf("create certificate: %w", err)
	}

	certOut, err := os.OpenFile(certFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return false, fmt.Errorf("write certificate: %w", err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return false, fmt.Errorf("encode certificate: %w", err)
	}

	keyOut, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return false, fmt.Errorf("write key: %w", err)
	}
	defer keyOut.Close()
	keyDER := x509.MarshalPKCS1PrivateKey(key)
	if err := pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER}); err != nil {
		return false, fmt.Errorf("encode key: %w", err)
	}

	log.Info().Str("cert", certFile).Msg("Generated new client certificate")
	return true, nil
}

// Load reads the client certificate/key pair for use in a TLS config.
func Load(certFile, keyFile string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(certFile, keyFile)
}

// Migrate renames a transient default certificate pair to the per-device
// paths. If force is false, existing per-device files are kept.
func Migrate(defaultCert, defaultKey, deviceCert, deviceKey string, force bool) error {
	if !fileExists(defaultCert) || !fileExists(defaultKey) {
		return nil
	}
	if !force && fileExists(deviceCert) && fileExists(deviceKey) {
		return nil
	}

	log.Info().Str("from", defaultCert).Str("to", deviceCert).Msg("Migrating certificate pair")
	if err := os.Rename(defaultCert, deviceCert); err != nil {
		return fmt.Errorf("rename certificate: %w", err)
	}
	if err := os.Rename(defaultKey, deviceKey); err != nil {
		return fmt.Errorf("rename key: %w", err)
	}
	return nil
}

// Remove deletes the certificate pair. Missing files are not an error.
func Remove(certFile, keyFile string) error {
	for _, f := range []string{certFile, keyFile} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
