// Package crypt implements the standard security handler: password
// verification, file key derivation, and per-object encryption and
// decryption for RC4 (revisions 2 to 4) and AES (V4 AESV2, V5 AESV3).
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/tsawler/vellum/core"
)

// ErrInvalidPassword is returned when neither the user nor the owner
// password authenticates against the encryption dictionary.
var ErrInvalidPassword = errors.New("invalid password")

// passwordPad is the 32-byte padding string from Algorithm 2. Passwords
// shorter than 32 bytes are extended with its leading bytes.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Handler holds a validated file encryption key and knows how to derive
// per-object keys and run the string and stream ciphers in both directions.
type Handler struct {
	key []byte // file encryption key
	v   int    // /V: algorithm version
	r   int    // /R: standard handler revision
}

// NewHandler authenticates the password against the encryption dictionary
// and returns a handler holding the file key. The user password is tried
// first, then the owner password path. fileID is the raw first element of
// the trailer /ID array.
func NewHandler(encrypt core.Dict, fileID []byte, password []byte) (*Handler, error) {
	if filter, ok := encrypt.GetName("Filter"); !ok || filter != "Standard" {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("unsupported security handler %v", encrypt.Get("Filter"))}
	}

	v := dictInt(encrypt, "V", 0)
	r := dictInt(encrypt, "R", 0)
	length := dictInt(encrypt, "Length", 40)

	if length%8 != 0 || length < 40 || (length > 128 && length != 256) {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("%d-bit encryption key", length)}
	}
	if err := validateVersion(v, encrypt); err != nil {
		return nil, err
	}
	if r < 2 || r == 5 || r > 6 {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("encryption revision R=%d", r)}
	}

	if len(password) > 127 {
		password = password[:127]
	}

	if r == 6 {
		return newR6(encrypt, password)
	}

	o := dictBytes(encrypt, "O")
	u := dictBytes(encrypt, "U")
	if len(o) != 32 || len(u) != 32 {
		return nil, &core.EncryptionError{Msg: "missing or short /O or /U entry"}
	}
	p := uint32(dictInt(encrypt, "P", 0))
	encryptMetadata := true
	if b, ok := encrypt.GetBool("EncryptMetadata"); ok {
		encryptMetadata = bool(b)
	}

	// User password first.
	key := fileKey(password, o, p, fileID, r, length, encryptMetadata)
	if checkUserKey(key, u, fileID, r) {
		return &Handler{key: key, v: v, r: r}, nil
	}

	// Owner password path: the owner key decrypts /O back into the user
	// password, which then has to authenticate the normal way.
	userPw := decryptOwnerEntry(password, o, r, length)
	key = fileKey(userPw, o, p, fileID, r, length, encryptMetadata)
	if checkUserKey(key, u, fileID, r) {
		return &Handler{key: key, v: v, r: r}, nil
	}

	return nil, ErrInvalidPassword
}

// Revision returns the standard handler revision (/R).
func (h *Handler) Revision() int {
	return h.r
}

// aesMode reports whether object payloads use AES-CBC rather than RC4.
func (h *Handler) aesMode() bool {
	return h.v == 4 || h.v == 5
}

// objectKey derives the key for a single object. For V5 the file key is
// used directly; earlier versions mix in the object number and generation.
func (h *Handler) objectKey(num, gen int) []byte {
	if h.v == 5 {
		return h.key
	}

	hash := md5.New()
	hash.Write(h.key)
	hash.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	if h.aesMode() {
		hash.Write([]byte("sAlT"))
	}
	key := hash.Sum(nil)

	if n := len(h.key) + 5; n < 16 {
		key = key[:n]
	}
	return key
}

// DecryptBytes decrypts a string value or stream body belonging to the
// given object. AES payloads carry a 16-byte IV prefix and PKCS#7 padding.
func (h *Handler) DecryptBytes(num, gen int, data []byte) ([]byte, error) {
	if h == nil {
		return data, nil
	}

	key := h.objectKey(num, gen)
	if !h.aesMode() {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, &core.EncryptionError{Msg: fmt.Sprintf("invalid RC4 key: %v", err)}
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	}

	if len(data) < 16 || (len(data)-16)%aes.BlockSize != 0 {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("AES payload of %d bytes", len(data))}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("invalid AES key: %v", err)}
	}

	iv, body := data[:16], data[16:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return stripPKCS7(out), nil
}

// EncryptBytes encrypts a string value or stream body for the given object.
// AES output is a fresh random IV followed by the PKCS#7 padded ciphertext.
func (h *Handler) EncryptBytes(num, gen int, data []byte) ([]byte, error) {
	if h == nil {
		return data, nil
	}

	key := h.objectKey(num, gen)
	if !h.aesMode() {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, &core.EncryptionError{Msg: fmt.Sprintf("invalid RC4 key: %v", err)}
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("invalid AES key: %v", err)}
	}

	padded := padPKCS7(data)
	out := make([]byte, 16+len(padded))
	iv := out[:16]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("IV generation: %v", err)}
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[16:], padded)
	return out, nil
}

// fileKey implements Algorithm 2: MD5 over the padded password, /O, /P,
// the file ID, and the metadata flag, with 50 extra rounds for R >= 3.
func fileKey(password, o []byte, p uint32, fileID []byte, r, length int, encryptMetadata bool) []byte {
	hash := md5.New()
	hash.Write(padPassword(password))
	hash.Write(o)
	hash.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	hash.Write(fileID)
	if !encryptMetadata {
		hash.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := hash.Sum(nil)

	n := length / 8
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
		return key[:n]
	}
	return key[:5]
}

// checkUserKey verifies a candidate file key against /U.
func checkUserKey(key, u, fileID []byte, r int) bool {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return false
	}

	if r == 2 {
		w := make([]byte, 32)
		copy(w, passwordPad)
		c.XORKeyStream(w, w)
		return bytes.Equal(w, u)
	}

	// R >= 3: RC4 over MD5(pad + fileID), then 19 rounds with the key
	// XORed by the round number. Only the first 16 bytes of /U count.
	hash := md5.New()
	hash.Write(passwordPad)
	hash.Write(fileID)
	w := hash.Sum(nil)
	c.XORKeyStream(w, w)

	for i := 1; i <= 19; i++ {
		c, _ = rc4.NewCipher(xorKey(key, byte(i)))
		c.XORKeyStream(w, w)
	}
	return bytes.Equal(w, u[:16])
}

// decryptOwnerEntry runs Algorithm 7: the owner key decrypts /O back into
// the padded user password.
func decryptOwnerEntry(ownerPassword, o []byte, r, length int) []byte {
	hash := md5.Sum(padPassword(ownerPassword))
	key := hash[:]

	n := length / 8
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
		key = key[:n]
	} else {
		key = key[:5]
	}

	out := make([]byte, len(o))
	copy(out, o)

	if r == 2 {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil
		}
		c.XORKeyStream(out, out)
		return out
	}

	for i := 19; i >= 0; i-- {
		c, err := rc4.NewCipher(xorKey(key, byte(i)))
		if err != nil {
			return nil
		}
		c.XORKeyStream(out, out)
	}
	return out
}

// newR6 authenticates an AES-256 (V5 R6) dictionary: Algorithm 2.B hashes
// against the /U and /O salts, key unwrap from /UE or /OE, and the /Perms
// sanity check.
func newR6(encrypt core.Dict, password []byte) (*Handler, error) {
	u := dictBytes(encrypt, "U")
	o := dictBytes(encrypt, "O")
	ue := dictBytes(encrypt, "UE")
	oe := dictBytes(encrypt, "OE")
	perms := dictBytes(encrypt, "Perms")

	if len(u) < 48 {
		return nil, &core.EncryptionError{Msg: fmt.Sprintf("/U entry of %d bytes", len(u))}
	}
	u = u[:48]

	var key []byte
	switch {
	case bytes.Equal(hashR6(password, u[32:40], nil), u[:32]):
		// User password: unwrap the file key from /UE.
		if len(ue) < 32 {
			return nil, &core.EncryptionError{Msg: "missing /UE entry"}
		}
		key = unwrapKeyR6(hashR6(password, u[40:48], nil), ue[:32])

	case len(o) >= 48 && bytes.Equal(hashR6(password, o[32:40], u), o[:48][:32]):
		// Owner password: the hash includes the full /U string.
		if len(oe) < 32 {
			return nil, &core.EncryptionError{Msg: "missing /OE entry"}
		}
		key = unwrapKeyR6(hashR6(password, o[:48][40:48], u), oe[:32])

	default:
		return nil, ErrInvalidPassword
	}

	if len(perms) >= 16 {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, &core.EncryptionError{Msg: fmt.Sprintf("invalid AES-256 key: %v", err)}
		}
		dec := make([]byte, 16)
		block.Decrypt(dec, perms[:16])
		if string(dec[9:12]) != "adb" {
			return nil, &core.EncryptionError{Msg: "/Perms entry failed validation"}
		}
	}

	return &Handler{key: key, v: 5, r: 6}, nil
}

// unwrapKeyR6 decrypts a 32-byte wrapped file key with AES-CBC and a zero IV.
func unwrapKeyR6(intermediate, wrapped []byte) []byte {
	block, err := aes.NewCipher(intermediate)
	if err != nil {
		return nil
	}
	var iv [16]byte
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(key, wrapped)
	return key
}

// hashR6 implements Algorithm 2.B of ISO 32000-2. udata is the /U string
// for owner password hashing, nil otherwise.
func hashR6(password, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)

	round := make([]byte, 0, len(password)+64+len(udata))
	for i := 1; ; i++ {
		round = round[:0]
		round = append(round, password...)
		round = append(round, k...)
		round = append(round, udata...)
		k1 := bytes.Repeat(round, 64)

		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		var mod int
		for j := 0; j < 16; j++ {
			mod += int(e[j])
		}
		switch mod % 3 {
		case 0:
			v := sha256.Sum256(e)
			k = v[:]
		case 1:
			v := sha512.Sum384(e)
			k = v[:]
		case 2:
			v := sha512.Sum512(e)
			k = v[:]
		}

		if i >= 64 && e[len(e)-1] <= byte(i-32) {
			break
		}
	}

	return k[:32]
}

// validateVersion checks /V and, for V4/V5, the crypt filter setup: a /CF
// entry naming a single filter used by both /StmF and /StrF with the AESV2
// or AESV3 method.
func validateVersion(v int, encrypt core.Dict) error {
	switch v {
	case 1, 2:
		return nil
	case 4, 5:
	default:
		return &core.EncryptionError{Msg: fmt.Sprintf("encryption version V=%d", v)}
	}

	cf, ok := encrypt.GetDict("CF")
	if !ok {
		return &core.EncryptionError{Msg: "V4/V5 encryption without /CF"}
	}
	stmf, ok1 := encrypt.GetName("StmF")
	strf, ok2 := encrypt.GetName("StrF")
	if !ok1 || !ok2 || stmf != strf {
		return &core.EncryptionError{Msg: "stream and string crypt filters differ"}
	}

	param, ok := cf.GetDict(string(stmf))
	if !ok {
		return &core.EncryptionError{Msg: fmt.Sprintf("crypt filter %s not defined in /CF", stmf)}
	}
	if event, ok := param.GetName("AuthEvent"); ok && event != "DocOpen" {
		return &core.EncryptionError{Msg: fmt.Sprintf("unsupported /AuthEvent %s", event)}
	}

	wantCFM := core.Name("AESV2")
	if v == 5 {
		wantCFM = "AESV3"
	}
	if cfm, ok := param.GetName("CFM"); !ok || cfm != wantCFM {
		return &core.EncryptionError{Msg: fmt.Sprintf("unsupported crypt filter method %v", param.Get("CFM"))}
	}
	return nil
}

// padPassword extends a password to exactly 32 bytes with the standard
// padding string.
func padPassword(password []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, password)
	copy(padded[n:], passwordPad)
	return padded
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

func padPKCS7(data []byte) []byte {
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

// stripPKCS7 removes trailing padding, tolerating files whose padding is
// absent or malformed by leaving the data unchanged.
func stripPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return data
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return data
		}
	}
	return data[:len(data)-pad]
}

// dictInt reads an integer entry with a default.
func dictInt(d core.Dict, key string, def int) int {
	if v, ok := d.GetInt(key); ok {
		return int(v)
	}
	return def
}

// dictBytes reads a string entry's raw bytes.
func dictBytes(d core.Dict, key string) []byte {
	if s, ok := d.GetString(key); ok {
		return s.Value
	}
	return nil
}
