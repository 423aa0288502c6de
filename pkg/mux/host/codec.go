package host

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

const (
	FormatName    = "paramux-graph"
	FormatVersion = 1
)

// Encoding is the serialization of an artifact file.
type Encoding uint8

const (
	EncodingCBOR Encoding = iota
	EncodingJSON
)

func (e Encoding) String() string {
	if e == EncodingJSON {
		return "json"
	}
	return "cbor"
}

// EncodingFor picks JSON for .json paths and CBOR otherwise.
func EncodingFor(path string) Encoding {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return EncodingJSON
	}
	return EncodingCBOR
}

// Artifact is a graph plus the id of the install it carries, if any.
type Artifact struct {
	InstallID string
	Graph     *Graph
}

type envelope[R any] struct {
	Format        string `json:"format" cbor:"format"`
	FormatVersion int    `json:"format_version" cbor:"format_version"`
	InstallID     string `json:"install_id,omitempty" cbor:"install_id,omitempty"`
	Checksum      string `json:"checksum" cbor:"checksum"`
	Graph         R      `json:"graph" cbor:"graph"`
}

var cborEnc cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor canonical encoder: %v", err))
	}
	cborEnc = em
}

// Checksum returns "sha256:<hex>" of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// VerifyChecksum checks data against a prefixed checksum string.
func VerifyChecksum(data []byte, checksum string) (bool, error) {
	algo, want, ok := strings.Cut(checksum, ":")
	if !ok || algo != "sha256" {
		return false, fmt.Errorf("%w: unsupported checksum %q", muxerrors.ErrInvalidFormat, checksum)
	}
	return strings.TrimPrefix(Checksum(data), "sha256:") == strings.ToLower(want), nil
}

// Encode serializes a. The checksum covers the encoded graph bytes.
func Encode(a Artifact, enc Encoding) ([]byte, error) {
	if a.Graph == nil {
		return nil, fmt.Errorf("%w: nil graph", muxerrors.ErrInvalidFormat)
	}
	switch enc {
	case EncodingJSON:
		raw, err := json.Marshal(a.Graph)
		if err != nil {
			return nil, fmt.Errorf("encoding graph: %w", err)
		}
		return json.MarshalIndent(envelope[json.RawMessage]{
			Format:        FormatName,
			FormatVersion: FormatVersion,
			InstallID:     a.InstallID,
			Checksum:      Checksum(raw),
			Graph:         raw,
		}, "", "  ")
	default:
		raw, err := cborEnc.Marshal(a.Graph)
		if err != nil {
			return nil, fmt.Errorf("encoding graph: %w", err)
		}
		return cborEnc.Marshal(envelope[cbor.RawMessage]{
			Format:        FormatName,
			FormatVersion: FormatVersion,
			InstallID:     a.InstallID,
			Checksum:      Checksum(raw),
			Graph:         raw,
		})
	}
}

// Decode parses either encoding, sniffing JSON by its leading brace, and
// verifies the checksum.
func Decode(data []byte) (Artifact, Encoding, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var env envelope[json.RawMessage]
		if err := json.Unmarshal(data, &env); err != nil {
			return Artifact{}, EncodingJSON, fmt.Errorf("%w: %v", muxerrors.ErrInvalidFormat, err)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, env.Graph); err != nil {
			return Artifact{}, EncodingJSON, fmt.Errorf("%w: %v", muxerrors.ErrInvalidFormat, err)
		}
		a, err := open(env.Format, env.FormatVersion, env.InstallID, env.Checksum, compact.Bytes(), json.Unmarshal)
		return a, EncodingJSON, err
	}

	var env envelope[cbor.RawMessage]
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Artifact{}, EncodingCBOR, fmt.Errorf("%w: %v", muxerrors.ErrInvalidFormat, err)
	}
	a, err := open(env.Format, env.FormatVersion, env.InstallID, env.Checksum, env.Graph, cbor.Unmarshal)
	return a, EncodingCBOR, err
}

func open(format string, version int, installID, checksum string, raw []byte, unmarshal func([]byte, any) error) (Artifact, error) {
	if format != FormatName {
		return Artifact{}, fmt.Errorf("%w: format %q", muxerrors.ErrInvalidFormat, format)
	}
	if version != FormatVersion {
		return Artifact{}, fmt.Errorf("%w: unsupported version %d", muxerrors.ErrInvalidFormat, version)
	}
	ok, err := VerifyChecksum(raw, checksum)
	if err != nil {
		return Artifact{}, err
	}
	if !ok {
		return Artifact{}, fmt.Errorf("%w: expected %s, got %s", muxerrors.ErrChecksumMismatch, checksum, Checksum(raw))
	}
	g := &Graph{}
	if err := unmarshal(raw, g); err != nil {
		return Artifact{}, fmt.Errorf("%w: graph: %v", muxerrors.ErrInvalidFormat, err)
	}
	return Artifact{InstallID: installID, Graph: g}, nil
}

// ReadFile loads and verifies an artifact.
func ReadFile(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	a, _, err := Decode(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// WriteFile encodes a by path extension and replaces path atomically.
func WriteFile(path string, a Artifact) error {
	data, err := Encode(a, EncodingFor(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
