// Package bundle packs a boot entry into a single signed zip file for
// transport: a manifest plus the kernel, initrd, and device-tree payloads,
// with an ed25519 signature over the archive appended at the end.
package bundle

import (
	"encoding/json"
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/mholt/archiver"
	"golang.org/x/crypto/ed25519"

	"github.com/johnrichardrinehart/tinyboot/pkg/crypto"
)

var (
	// DefaultManifestJSONFilename inside the bundle
	DefaultManifestJSONFilename = "manifest.json"
	// DefaultKernelPath inside the bundle
	DefaultKernelPath = "kernel"
	// DefaultInitrdPath inside the bundle
	DefaultInitrdPath = "initrd"
	// DefaultDeviceTreePath inside the bundle
	DefaultDeviceTreePath = "device-tree"
)

// Manifest describes the entry carried by a bundle. File fields are
// basenames relative to the payload directories.
type Manifest struct {
	ID         string `json:"id"`
	Kernel     string `json:"kernel"`
	Initrd     string `json:"initrd,omitempty"`
	DeviceTree string `json:"devicetree,omitempty"`
	Cmdline    string `json:"cmdline,omitempty"`
	Priority   int    `json:"priority"`
	MaxTries   uint32 `json:"max_tries"`
}

// Pack writes a bundle to outputFilePath. When privateKeyPath is non-empty
// the archive bytes are signed with ed25519 and the signature appended.
func Pack(outputFilePath string, m Manifest, kernelPath, initrdPath, dtPath string, privateKeyPath string, password []byte) error {
	packDir, err := os.MkdirTemp("", "tinyboot-pack")
	if err != nil {
		return err
	}
	defer os.RemoveAll(packDir)

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	manifestPath := path.Join(packDir, DefaultManifestJSONFilename)
	if err := os.WriteFile(manifestPath, manifest, 0644); err != nil {
		return err
	}

	files := []string{manifestPath}
	for _, payload := range []struct {
		src, dir string
	}{
		{kernelPath, DefaultKernelPath},
		{initrdPath, DefaultInitrdPath},
		{dtPath, DefaultDeviceTreePath},
	} {
		if payload.src == "" {
			continue
		}
		dir := path.Join(packDir, payload.dir)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		data, err := os.ReadFile(payload.src)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path.Join(dir, filepath.Base(payload.src)), data, 0644); err != nil {
			return err
		}
		files = append(files, dir)
	}

	if err := archiver.Zip.Make(outputFilePath, files); err != nil {
		return err
	}

	if privateKeyPath == "" {
		return nil
	}
	archive, err := os.ReadFile(outputFilePath)
	if err != nil {
		return err
	}
	privateKey, err := crypto.LoadED25519PrivateKeyFromFile(privateKeyPath, password)
	if err != nil {
		return err
	}
	signature, err := crypto.SignED25519Signature(privateKey, archive)
	if err != nil {
		return err
	}
	return os.WriteFile(outputFilePath, append(archive, signature...), 0644)
}

// Unpack extracts a bundle into a fresh temporary directory and returns its
// manifest and the directory path. When publicKeyPath is non-empty the
// trailing ed25519 signature is verified before anything is parsed; a
// mismatch fails closed.
func Unpack(filename string, publicKeyPath string) (*Manifest, string, error) {
	if !archiver.Zip.Match(filename) {
		return nil, "", errors.New("file is not in zip format")
	}

	if publicKeyPath != "" {
		signed, err := os.ReadFile(filename)
		if err != nil {
			return nil, "", err
		}
		if len(signed) <= ed25519.SignatureSize {
			return nil, "", errors.New("bundle too short to carry a signature")
		}
		publicKey, err := crypto.LoadED25519PublicKeyFromFile(publicKeyPath)
		if err != nil {
			return nil, "", err
		}
		offset := len(signed) - ed25519.SignatureSize
		if err := crypto.VerifyED25519Signature(publicKey, signed[:offset], signed[offset:]); err != nil {
			return nil, "", errors.New("signature verification of bundle failed")
		}
	}

	unpackDir, err := os.MkdirTemp("", "tinyboot-unpack")
	if err != nil {
		return nil, "", err
	}
	if err := archiver.Zip.Open(filename, unpackDir); err != nil {
		return nil, "", err
	}

	manifest, err := os.ReadFile(path.Join(unpackDir, DefaultManifestJSONFilename))
	if err != nil {
		return nil, "", err
	}
	var m Manifest
	if err := json.Unmarshal(manifest, &m); err != nil {
		return nil, "", err
	}
	return &m, unpackDir, nil
}

// PayloadPath resolves a manifest file field to its extracted location.
func PayloadPath(unpackDir, payloadDir, name string) string {
	if name == "" {
		return ""
	}
	return path.Join(unpackDir, payloadDir, name)
}
