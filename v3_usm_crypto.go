// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec // RFC 3414 privacy protocol
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// passwordToKey expansion length (RFC 3414 §A.2.1).
const expandedPasswordLength = 1048576

type passwordCacheKey struct {
	proto    SnmpV3AuthProtocol
	password string
}

// Ku depends only on the protocol and passphrase, and costs a megabyte of
// hashing, so it is computed once per pair.
var (
	passwordCacheMu sync.Mutex
	passwordCache   = map[passwordCacheKey][]byte{}
)

// passwordToKey hashes the passphrase repeated to one megabyte.
func passwordToKey(proto SnmpV3AuthProtocol, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("usm: empty passphrase")
	}
	h := proto.hash()
	if h == 0 || !h.Available() {
		return nil, fmt.Errorf("usm: no hash for auth protocol %s", proto)
	}

	key := passwordCacheKey{proto, password}
	passwordCacheMu.Lock()
	defer passwordCacheMu.Unlock()
	if ku, ok := passwordCache[key]; ok {
		return ku, nil
	}

	hf := h.New()
	pw := []byte(password)
	var chunk [64]byte
	for count := 0; count < expandedPasswordLength; count += len(chunk) {
		for i := range chunk {
			chunk[i] = pw[(count+i)%len(pw)]
		}
		hf.Write(chunk[:])
	}
	ku := hf.Sum(nil)
	passwordCache[key] = ku
	return ku, nil
}

// localizedKey returns Kul = H(Ku || engineID || Ku).
func localizedKey(proto SnmpV3AuthProtocol, password, engineID string) ([]byte, error) {
	ku, err := passwordToKey(proto, password)
	if err != nil {
		return nil, err
	}
	hf := proto.hash().New()
	hf.Write(ku)
	hf.Write([]byte(engineID))
	hf.Write(ku)
	return hf.Sum(nil), nil
}

// nextSalt returns the next value of the per-user salt counter.
func (sp *UsmSecurityParameters) nextSalt() uint64 {
	if sp.salt == 0 {
		sp.salt = rand.Uint64()
	}
	sp.salt++
	return sp.salt
}

// encrypt returns the ciphertext of scoped and its msgPrivacyParameters.
func (sp *UsmSecurityParameters) encrypt(scoped []byte, boots, engineTime uint32) ([]byte, []byte, error) {
	switch sp.privProtocol() {
	case DES:
		salt := make([]byte, 8)
		binary.BigEndian.PutUint32(salt[:4], boots)
		binary.BigEndian.PutUint32(salt[4:], uint32(sp.nextSalt()))
		out, err := encryptDES(sp.privKey, salt, scoped)
		return out, salt, err
	case AES:
		salt := binary.BigEndian.AppendUint64(nil, sp.nextSalt())
		out, err := encryptAES(sp.privKey, salt, boots, engineTime, scoped)
		return out, salt, err
	}
	return nil, nil, fmt.Errorf("privacy protocol %s", sp.privProtocol())
}

func (sp *UsmSecurityParameters) decrypt(data, salt []byte, boots, engineTime uint32) ([]byte, error) {
	switch sp.privProtocol() {
	case DES:
		return decryptDES(sp.privKey, salt, data)
	case AES:
		return decryptAES(sp.privKey, salt, boots, engineTime, data)
	}
	return nil, fmt.Errorf("privacy protocol %s", sp.privProtocol())
}

// desIV is the pre-IV (second half of the privacy key) XOR the salt
// (RFC 3414 §8.1.1.1).
func desIV(privKey, salt []byte) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, errors.New("des: privacy key too short")
	}
	if len(salt) != 8 {
		return nil, fmt.Errorf("des: salt is %d bytes", len(salt))
	}
	iv := make([]byte, des.BlockSize)
	for i := range iv {
		iv[i] = privKey[8+i] ^ salt[i]
	}
	return iv, nil
}

func encryptDES(privKey, salt, plain []byte) ([]byte, error) {
	iv, err := desIV(privKey, salt)
	if err != nil {
		return nil, err
	}
	block, err := des.NewCipher(privKey[:8])
	if err != nil {
		return nil, err
	}
	padded := plain
	if rem := len(plain) % des.BlockSize; rem != 0 {
		padded = make([]byte, len(plain)+des.BlockSize-rem)
		copy(padded, plain)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptDES(privKey, salt, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("des: ciphertext length %d is not a multiple of %d", len(data), des.BlockSize)
	}
	iv, err := desIV(privKey, salt)
	if err != nil {
		return nil, err
	}
	block, err := des.NewCipher(privKey[:8])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// aesIV is boots || time || salt (RFC 3826 §3.1.2.1).
func aesIV(privKey, salt []byte, boots, engineTime uint32) ([]byte, error) {
	if len(privKey) < 16 {
		return nil, errors.New("aes: privacy key too short")
	}
	if len(salt) != 8 {
		return nil, fmt.Errorf("aes: salt is %d bytes", len(salt))
	}
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv[0:4], boots)
	binary.BigEndian.PutUint32(iv[4:8], engineTime)
	copy(iv[8:], salt)
	return iv, nil
}

func encryptAES(privKey, salt []byte, boots, engineTime uint32, plain []byte) ([]byte, error) {
	iv, err := aesIV(privKey, salt, boots, engineTime)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plain))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, plain) //nolint:staticcheck // CFB is mandated by RFC 3826
	return out, nil
}

func decryptAES(privKey, salt []byte, boots, engineTime uint32, data []byte) ([]byte, error) {
	iv, err := aesIV(privKey, salt, boots, engineTime)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, data) //nolint:staticcheck // CFB is mandated by RFC 3826
	return out, nil
}
