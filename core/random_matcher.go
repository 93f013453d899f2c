package core

import (
	"crypto/cipher"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	XPubSize = 64

	byronAddressCborTag           = 24
	byronAttributeDerivation      = 1
	hdPayloadKeySalt              = "address-hashing"
	hdPayloadKeyIterations        = 500
	defaultRandomMatcherCacheSize = 4096
)

var hdPayloadNonce = []byte("serokellfore")

type byronAddress struct {
	_       struct{} `cbor:",toarray"`
	Payload cbor.RawTag
	Crc     uint32
}

type byronAddressPayload struct {
	_          struct{} `cbor:",toarray"`
	Root       []byte
	Attributes map[uint64]cbor.RawMessage
	Type       uint64
}

type randomLookupResult struct {
	path  RandomPath
	found bool
}

// RandomDerivationMatcher recognizes Byron random-index addresses by decrypting the
// derivation path they carry with a key derived from the wallet root public key
type RandomDerivationMatcher struct {
	aead  cipher.AEAD
	cache *lru.Cache
}

var _ AddressMatcher = (*RandomDerivationMatcher)(nil)

func NewRandomDerivationMatcher(rootXPub []byte, cacheSize int) (*RandomDerivationMatcher, error) {
	if len(rootXPub) != XPubSize {
		return nil, fmt.Errorf("%w: root public key has %d bytes, expected %d",
			ErrAddressDerivation, len(rootXPub), XPubSize)
	}

	if cacheSize <= 0 {
		cacheSize = defaultRandomMatcherCacheSize
	}

	key := pbkdf2.Key(rootXPub, []byte(hdPayloadKeySalt), hdPayloadKeyIterations, chacha20poly1305.KeySize, sha512.New)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Join(ErrAddressDerivation, err)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &RandomDerivationMatcher{
		aead:  aead,
		cache: cache,
	}, nil
}

func (m *RandomDerivationMatcher) Lookup(ptr StatePtr, candidates []*OutputCandidate) ([]*Utxo, error) {
	if m.aead == nil {
		return nil, fmt.Errorf("%w: matcher has no payload key", ErrAddressDerivation)
	}

	var found []*Utxo

	for _, candidate := range candidates {
		if path, ok := m.getAddressing(candidate.Output.RawAddress); ok {
			found = append(found, newMatchedUtxo(ptr, candidate, NewRandomAddrTag(path)))
		}
	}

	return found, nil
}

func (m *RandomDerivationMatcher) AcknowledgeAddress(WalletAddrTag) error {
	return nil
}

func (m *RandomDerivationMatcher) getAddressing(rawAddress []byte) (RandomPath, bool) {
	if len(rawAddress) == 0 {
		return nil, false
	}

	cacheKey := string(rawAddress)
	if value, exists := m.cache.Get(cacheKey); exists {
		result, _ := value.(randomLookupResult)

		return result.path, result.found
	}

	path, err := m.decryptAddressPath(rawAddress)
	m.cache.Add(cacheKey, randomLookupResult{path: path, found: err == nil})

	return path, err == nil
}

func (m *RandomDerivationMatcher) decryptAddressPath(rawAddress []byte) (RandomPath, error) {
	encryptedPath, err := getByronDerivationPayload(rawAddress)
	if err != nil {
		return nil, err
	}

	if len(encryptedPath) < m.aead.Overhead() {
		return nil, fmt.Errorf("%w: derivation payload too short", ErrDecode)
	}

	plain, err := m.aead.Open(nil, hdPayloadNonce, encryptedPath, nil)
	if err != nil {
		return nil, err
	}

	var path RandomPath
	if err := cbor.Unmarshal(plain, &path); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	return path, nil
}

// getByronDerivationPayload extracts the encrypted derivation path from a Byron address
func getByronDerivationPayload(rawAddress []byte) ([]byte, error) {
	var address byronAddress
	if err := cbor.Unmarshal(rawAddress, &address); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	if address.Payload.Number != byronAddressCborTag {
		return nil, fmt.Errorf("%w: unexpected address tag %d", ErrDecode, address.Payload.Number)
	}

	var payloadBytes []byte
	if err := cbor.Unmarshal(address.Payload.Content, &payloadBytes); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	if crc32.ChecksumIEEE(payloadBytes) != address.Crc {
		return nil, fmt.Errorf("%w: address checksum mismatch", ErrDecode)
	}

	var payload byronAddressPayload
	if err := cbor.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	rawAttribute, exists := payload.Attributes[byronAttributeDerivation]
	if !exists {
		return nil, fmt.Errorf("%w: address has no derivation path", ErrDecode)
	}

	// attribute value is a byte string holding the cbor encoded encrypted path
	var attributeBytes []byte
	if err := cbor.Unmarshal(rawAttribute, &attributeBytes); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	var encryptedPath []byte
	if err := cbor.Unmarshal(attributeBytes, &encryptedPath); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	return encryptedPath, nil
}
